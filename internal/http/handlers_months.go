package http

import (
	"errors"
	"net/http"
	"strings"

	"budgetcards/internal/ai"
	"budgetcards/internal/core"
	applog "budgetcards/internal/log"
)

type monthResponse struct {
	Year  int         `json:"year"`
	Month int         `json:"month"`
	Cards []core.Card `json:"cards"`
	Stats core.Stats  `json:"stats"`
}

type cardResponse struct {
	Title string            `json:"title"`
	Item  *core.BudgetItem  `json:"item,omitempty"`
	Items []core.BudgetItem `json:"items"`
}

type addItemRequest struct {
	Text   string       `json:"text"`
	Amount textOrNumber `json:"amount"`
}

type updateFieldRequest struct {
	Field string       `json:"field"`
	Value textOrNumber `json:"value"`
}

type reorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// requestLogger returns the request scoped logger tagged for this package.
func (s *Server) requestLogger(r *http.Request) *applog.Logger {
	return applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP)
}

// cardParams reads year, month and title from the path.
func cardParams(r *http.Request) (MonthParams, string, error) {
	p, err := ParseMonthParams(r)
	if err != nil {
		return p, "", err
	}
	title := strings.TrimSpace(r.PathValue("title"))
	if title == "" {
		return p, "", core.ErrEmptyTitle
	}
	return p, title, nil
}

func (s *Server) writeCard(w http.ResponseWriter, status int, title string, item *core.BudgetItem, items []core.BudgetItem) {
	if items == nil {
		items = []core.BudgetItem{}
	}
	NewJSONResponse().Status(status).JSON(cardResponse{Title: title, Item: item, Items: items}).Write(w)
}

// failEdit logs err and writes the mapped error response.
func (s *Server) failEdit(w http.ResponseWriter, r *http.Request, op string, err error, fallback int) {
	status := statusFor(err, fallback)
	logger := s.requestLogger(r)
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Board operation failed",
			applog.FieldOperation, op,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), "Board operation rejected",
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
	ErrorResponse(status, err.Error()).Write(w)
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	view, err := s.deps.Board.MonthView(r.Context(), p.Year, p.Month)
	if err != nil {
		s.failEdit(w, r, applog.OpRead, err, http.StatusBadGateway)
		return
	}
	NewJSONResponse().JSON(monthResponse{Year: view.Year, Month: view.Month, Cards: view.Cards, Stats: view.Stats}).Write(w)
}

func (s *Server) handleNextMonth(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Board.NextMonth(r.Context())
	if err != nil {
		s.failEdit(w, r, applog.OpRead, err, http.StatusBadGateway)
		return
	}
	NewJSONResponse().JSON(monthResponse{Year: view.Year, Month: view.Month, Cards: view.Cards, Stats: view.Stats}).Write(w)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	p, title, err := cardParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req addItemRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	text := sanitizeInput(req.Text)
	if len(text) > 200 {
		BadRequestError("text too long (max 200 characters)").Write(w)
		return
	}

	item, items, err := s.deps.Board.AddItem(r.Context(), p.Year, p.Month, title, text, string(req.Amount))
	if err != nil {
		s.failEdit(w, r, applog.OpCreate, err, http.StatusInternalServerError)
		return
	}
	s.requestLogger(r).InfoContext(r.Context(), "Item added",
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldTitle, title,
		applog.FieldItemKey, item.Key,
		applog.FieldAmount, item.Amount.String())
	s.writeCard(w, http.StatusCreated, title, &item, items)
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	p, title, err := cardParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	index, err := ParseIndex(r, "index")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req updateFieldRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Field == "" {
		BadRequestError("field is required").Write(w)
		return
	}
	items, err := s.deps.Board.UpdateField(r.Context(), p.Year, p.Month, title, index, req.Field, sanitizeInput(string(req.Value)))
	if err != nil {
		s.failEdit(w, r, applog.OpUpdate, err, http.StatusInternalServerError)
		return
	}
	s.writeCard(w, http.StatusOK, title, nil, items)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	p, title, err := cardParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	index, err := ParseIndex(r, "index")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	items, err := s.deps.Board.ToggleStatus(r.Context(), p.Year, p.Month, title, index)
	if err != nil {
		s.failEdit(w, r, applog.OpToggle, err, http.StatusInternalServerError)
		return
	}
	s.writeCard(w, http.StatusOK, title, nil, items)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	p, title, err := cardParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var req reorderRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.From == nil || req.To == nil {
		BadRequestError("from and to are required").Write(w)
		return
	}
	items, err := s.deps.Board.Reorder(r.Context(), p.Year, p.Month, title, *req.From, *req.To)
	if err != nil {
		s.failEdit(w, r, applog.OpReorder, err, http.StatusInternalServerError)
		return
	}
	s.writeCard(w, http.StatusOK, title, nil, items)
}

// handleDelete removes a persisted item. A store failure is surfaced as 502
// and the card is left as it was.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, title, err := cardParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	items, err := s.deps.Board.DeleteItem(r.Context(), p.Year, p.Month, title, id)
	if err != nil {
		s.failEdit(w, r, applog.OpDelete, err, http.StatusBadGateway)
		return
	}
	s.requestLogger(r).InfoContext(r.Context(), "Item deleted",
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldTitle, title,
		applog.FieldItemID, id)
	s.writeCard(w, http.StatusOK, title, nil, items)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	summary, err := s.deps.Board.Summary(r.Context(), p.Year, p.Month)
	if err != nil {
		fallback := http.StatusBadGateway
		if errors.Is(err, ai.ErrMissingAPIKey) {
			fallback = http.StatusServiceUnavailable
		}
		s.failEdit(w, r, applog.OpSummary, err, fallback)
		return
	}
	NewJSONResponse().JSON(map[string]string{"summary": summary}).Write(w)
}
