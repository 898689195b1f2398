package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		Token:           "test-token",
		ProvisioningURL: server.URL,
		PollInterval:    5 * time.Millisecond,
	}, nil)
}

func TestGetAccount(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/current/accounts/acc-1" {
			t.Errorf("path = %q, want /users/current/accounts/acc-1", r.URL.Path)
		}
		if got := r.Header.Get("auth-token"); got != "test-token" {
			t.Errorf("auth-token = %q, want test-token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"_id":              "acc-1",
			"name":             "demo",
			"login":            "12345",
			"server":           "Demo-Server",
			"platform":         "mt5",
			"state":            "DEPLOYED",
			"connectionStatus": "CONNECTED",
		})
	})

	acc, err := client.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if acc.ID() != "acc-1" {
		t.Errorf("ID = %q, want acc-1", acc.ID())
	}
	if acc.Name() != "demo" {
		t.Errorf("Name = %q, want demo", acc.Name())
	}
	if acc.State() != StateDeployed {
		t.Errorf("State = %q, want %q", acc.State(), StateDeployed)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := client.GetAccount(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetAccountServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad token"))
	})

	_, err := client.GetAccount(context.Background(), "acc-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
	}
}

func TestCreateAccount(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/users/current/accounts" {
			t.Errorf("request = %s %s, want POST /users/current/accounts", r.Method, r.URL.Path)
		}
		var req NewAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Login != "12345" || req.Platform != "mt5" {
			t.Errorf("request body = %+v, want login 12345 platform mt5", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "acc-new"})
	})

	id, err := client.CreateAccount(context.Background(), NewAccountRequest{
		Login:    "12345",
		Server:   "Demo-Server",
		Password: "pw",
		Name:     "demo",
		Platform: "mt5",
		Type:     "cloud",
		Magic:    1000,
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if id != "acc-new" {
		t.Errorf("id = %q, want acc-new", id)
	}
}

func TestListAccounts(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != StateDeployed {
			t.Errorf("state query = %q, want %q", got, StateDeployed)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{
			{"_id": "acc-1", "name": "one", "state": "DEPLOYED"},
			{"_id": "acc-2", "name": "two", "state": "DEPLOYED"},
		})
	})

	accounts, err := client.ListAccounts(context.Background(), StateDeployed)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("len = %d, want 2", len(accounts))
	}
	if accounts[0].ID != "acc-1" || accounts[1].ID != "acc-2" {
		t.Errorf("ids = [%s %s], want [acc-1 acc-2]", accounts[0].ID, accounts[1].ID)
	}
}

func TestDeployAndUndeploy(t *testing.T) {
	var deploys, undeploys atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/current/accounts/acc-1":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"_id": "acc-1", "state": "UNDEPLOYED"})
		case "/users/current/accounts/acc-1/deploy":
			deploys.Add(1)
			w.WriteHeader(http.StatusNoContent)
		case "/users/current/accounts/acc-1/undeploy":
			undeploys.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	acc, err := client.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	if err := acc.Deploy(context.Background()); err != nil {
		t.Errorf("Deploy failed: %v", err)
	}
	if err := acc.Undeploy(context.Background()); err != nil {
		t.Errorf("Undeploy failed: %v", err)
	}
	if deploys.Load() != 1 || undeploys.Load() != 1 {
		t.Errorf("deploy/undeploy calls = %d/%d, want 1/1", deploys.Load(), undeploys.Load())
	}
}

func TestWaitConnectedPollsUntilConnected(t *testing.T) {
	var polls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		status := "DISCONNECTED"
		if n >= 3 {
			status = ConnectionStatusConnected
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"_id":              "acc-1",
			"state":            "DEPLOYED",
			"connectionStatus": status,
		})
	})

	acc, err := client.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := acc.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected failed: %v", err)
	}
	if polls.Load() < 3 {
		t.Errorf("polls = %d, want at least 3", polls.Load())
	}
}

func TestWaitConnectedContextBound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"_id":              "acc-1",
			"state":            "DEPLOYING",
			"connectionStatus": "DISCONNECTED",
		})
	})

	acc, err := client.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := acc.WaitConnected(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitConnected = %v, want deadline exceeded", err)
	}
}

func TestStreamingConnectionIsCached(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"_id": "acc-1", "state": "DEPLOYED"})
	})

	acc, err := client.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	first := acc.StreamingConnection()
	second := acc.StreamingConnection()
	if first != second {
		t.Error("StreamingConnection returned different instances")
	}
}
