package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/EarningEdge/forex-trade-processor/internal/auth"
	"github.com/EarningEdge/forex-trade-processor/internal/gateway"
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// accountSummary is the per-account payload of GET /accounts.
type accountSummary struct {
	AccountID         string                      `json:"accountId"`
	Name              string                      `json:"name"`
	Login             string                      `json:"login"`
	Server            string                      `json:"server"`
	Platform          string                      `json:"platform"`
	Connected         bool                        `json:"connected"`
	ConnectedToBroker bool                        `json:"connectedToBroker"`
	AccountInfo       *metaapi.AccountInformation `json:"accountInfo"`
	Positions         []metaapi.Position          `json:"positions"`
	Orders            []metaapi.Order             `json:"orders"`
}

// accountDetail is the payload of GET /accounts/{accountId}.
type accountDetail struct {
	AccountID         string                      `json:"accountId"`
	Connected         bool                        `json:"connected"`
	ConnectedToBroker bool                        `json:"connectedToBroker"`
	AccountInfo       *metaapi.AccountInformation `json:"accountInfo"`
	Positions         []metaapi.Position          `json:"positions"`
	Orders            []metaapi.Order             `json:"orders"`
	Specifications    []string                    `json:"specifications"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"admin_email"`
		Password string `json:"admin_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Email and password are required"})
		return
	}

	token, err := s.auth.Login(body.Email, body.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.TokenTTL / time.Second),
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Authenticated successfully",
		"token":   token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.ListActive()

	accounts := make([]accountSummary, 0, len(sessions))
	for _, session := range sessions {
		state := session.Conn.TerminalState()
		accounts = append(accounts, accountSummary{
			AccountID:         session.AccountID,
			Name:              session.Account.Name(),
			Login:             session.Account.Login(),
			Server:            session.Account.Server(),
			Platform:          session.Account.Platform(),
			Connected:         state.Connected,
			ConnectedToBroker: state.ConnectedToBroker,
			AccountInfo:       orEmptyInfo(state.AccountInformation),
			Positions:         orEmptyPositions(state.Positions),
			Orders:            orEmptyOrders(state.Orders),
		})
	}

	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	session, ok := s.activeSession(w, r)
	if !ok {
		return
	}

	state := session.Conn.TerminalState()

	// Cap the symbol list; full specifications are large and observers
	// only need a sample.
	symbols := make([]string, 0, 10)
	for _, spec := range state.Specifications {
		if len(symbols) == 10 {
			break
		}
		symbols = append(symbols, spec.Symbol)
	}

	writeJSON(w, http.StatusOK, accountDetail{
		AccountID:         session.AccountID,
		Connected:         state.Connected,
		ConnectedToBroker: state.ConnectedToBroker,
		AccountInfo:       orEmptyInfo(state.AccountInformation),
		Positions:         orEmptyPositions(state.Positions),
		Orders:            orEmptyOrders(state.Orders),
		Specifications:    symbols,
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	session, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, orEmptyPositions(session.Conn.TerminalState().Positions))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	session, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, orEmptyOrders(session.Conn.TerminalState().Orders))
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	writeJSON(w, http.StatusOK, s.ledger.OrderHistory(accountID, historyFilter(r)))
}

func (s *Server) handleDealHistory(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]
	writeJSON(w, http.StatusOK, s.ledger.DealHistory(accountID, historyFilter(r)))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Server   string `json:"server"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.Login == "" || body.Server == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	name := body.Name
	if name == "" {
		name = body.Login + "@" + body.Server
	}

	accountID, err := s.api.CreateAccount(r.Context(), metaapi.NewAccountRequest{
		Login:    body.Login,
		Server:   body.Server,
		Password: body.Password,
		Name:     name,
		Platform: "mt5",
		Type:     "cloud",
		Magic:    1000,
	})
	if err != nil {
		s.logger.Error("failed to create account", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, connected := s.manager.Get(accountID); connected {
		writeJSON(w, http.StatusOK, map[string]string{
			"message":   "Account already connected",
			"accountId": accountID,
		})
		return
	}

	if !s.manager.Connect(r.Context(), accountID) {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":     "Failed to connect to account",
			"accountId": accountID,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":   "Account added and connected successfully",
		"accountId": accountID,
	})
}

func (s *Server) handleDisconnectAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	if !s.manager.Disconnect(r.Context(), accountID) {
		writeError(w, http.StatusNotFound, "Account not found or already disconnected")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Account " + accountID + " disconnected successfully",
	})
}

func (s *Server) handleRefreshAccounts(w http.ResponseWriter, r *http.Request) {
	s.manager.ReconcileAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":           "Refreshed accounts from MetaApi",
		"connectedAccounts": s.manager.Count(),
	})
}

// activeSession resolves the accountId path variable to a live session,
// writing the not-found response when the account has no session. History
// endpoints deliberately do not use this: history is independent of
// whether the account is currently connected.
func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) (*gateway.Session, bool) {
	accountID := mux.Vars(r)["accountId"]
	session, ok := s.manager.Get(accountID)
	if !ok {
		writeError(w, http.StatusNotFound, "Account not found")
		return nil, false
	}
	return session, true
}

func historyFilter(r *http.Request) ledger.Filter {
	q := r.URL.Query()
	return ledger.Filter{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Symbol:    q.Get("symbol"),
		Type:      q.Get("type"),
	}
}

func orEmptyInfo(info *metaapi.AccountInformation) *metaapi.AccountInformation {
	if info == nil {
		return &metaapi.AccountInformation{}
	}
	return info
}

func orEmptyPositions(positions []metaapi.Position) []metaapi.Position {
	if positions == nil {
		return []metaapi.Position{}
	}
	return positions
}

func orEmptyOrders(orders []metaapi.Order) []metaapi.Order {
	if orders == nil {
		return []metaapi.Order{}
	}
	return orders
}
