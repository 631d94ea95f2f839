package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/csvlens/internal/core"
	"github.com/JonMunkholm/csvlens/internal/display"
	"github.com/JonMunkholm/csvlens/internal/logging"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies; they only ever carry a path.
const maxBodyBytes = 64 << 10

// defaultPageSize is used by GET /rows when no limit is given.
const defaultPageSize = 100

type openRequest struct {
	Path string `json:"path"`
}

// openResponse reports the outcome of an open. A failed open is still a
// successful request: OK is false and Error says why.
type openResponse struct {
	ID    string         `json:"id"`
	OK    bool           `json:"ok"`
	Info  core.Info      `json:"info"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type rowsResponse struct {
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
	Total  int        `json:"total"`
	Rows   [][]string `json:"rows"`
}

type cellResponse struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Value  string `json:"value"`
}

type columnResponse struct {
	Index    int                    `json:"index"`
	Metadata display.ColumnMetadata `json:"metadata"`
	Values   []string               `json:"values"`
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Sessions int                    `json:"sessions"`
	Opens    core.OpenLimiterStatus `json:"opens"`
}

// handleHealth reports liveness plus a little load information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: s.service.SessionCount(),
		Opens:    s.service.OpenLimiterStatus(),
	})
}

// handleListTables returns every live session, oldest first.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListSessions())
}

// handleCreateTable creates a session and opens the requested file in it.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOpenRequest(w, r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sess, err := s.service.CreateSession(r.Context(), req.Path)
	s.respondOpen(w, r, sess, req.Path, err)
}

// handleOpenTable opens a new file in an existing session.
func (s *Server) handleOpenTable(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOpenRequest(w, r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sess, err := s.service.OpenSession(r.Context(), chi.URLParam(r, "id"), req.Path)
	s.respondOpen(w, r, sess, req.Path, err)
}

// respondOpen writes the result of CreateSession or OpenSession. Errors that
// left no session behind are request failures; a failed open is not.
func (s *Server) respondOpen(w http.ResponseWriter, r *http.Request, sess *core.Session, path string, err error) {
	if sess == nil || (err != nil && !core.IsOpenError(err)) {
		respondError(w, r, err, statusFor(err))
		return
	}

	logger := logging.WithFields(r.Context(), "session_id", sess.ID, "path", path, "file", sess.Table.Path())
	resp := openResponse{
		ID:   sess.ID,
		OK:   err == nil,
		Info: sess.Table.Info(),
	}
	if err != nil {
		logger.Info("table open failed", "error", err, "code", core.MapError(err).Code)
		resp.Error = newErrorResponse(core.NewUserError(err))
	} else {
		logger.Info("table opened", "rows", resp.Info.RowCount, "columns", resp.Info.ColumnCount)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetTable returns the session snapshot.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleCloseTable releases the session's file but keeps the session.
func (s *Server) handleCloseTable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.CloseSession(id); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleDeleteTable closes the session's file and forgets the session.
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHeaders returns the header row, or [] when nothing is open.
func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Table.Headers())
}

// handleRow returns one data row. Out-of-range indices yield [].
func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	row := sess.Table.Row(index)
	if wantsFormatted(r) {
		formatRow(row)
	}
	writeJSON(w, http.StatusOK, row)
}

// handleRows returns a page of rows: ?offset=0&limit=100.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if offset < 0 || limit < 1 {
		respondError(w, r, fmt.Errorf("%w: offset must be >= 0 and limit >= 1", core.ErrInvalidRequest), http.StatusBadRequest)
		return
	}
	limit = min(limit, s.cfg.Table.MaxPageSize)

	rows := sess.Table.Rows(offset, limit)
	if wantsFormatted(r) {
		for _, row := range rows {
			formatRow(row)
		}
	}
	writeJSON(w, http.StatusOK, rowsResponse{
		Offset: offset,
		Limit:  limit,
		Total:  sess.Table.RowCount(),
		Rows:   rows,
	})
}

// handleCell returns a single value; "" when either index is out of bounds.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	row, err := pathInt(r, "row")
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	col, err := pathInt(r, "col")
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	value := sess.Table.Cell(row, col)
	if wantsFormatted(r) {
		value = display.FormatCell(value)
	}
	writeJSON(w, http.StatusOK, cellResponse{Row: row, Column: col, Value: value})
}

// handleColumns describes every column. Width and type come from the leading
// rows; long content is checked over the whole file.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	headers := sess.Table.Headers()
	scanner := display.NewColumnScanner(len(headers))
	err := sess.Table.EachRow(func(_ int, row []string) bool {
		scanner.Add(row)
		return r.Context().Err() == nil
	})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	meta, err := scanner.Describe(r.Context(), headers)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleColumn describes one column and returns its leading values:
// ?limit= of them, capped at the max page size.
func (s *Server) handleColumn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	col, err := pathInt(r, "col")
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", s.cfg.Table.SampleRows)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit = min(max(limit, 1), s.cfg.Table.MaxPageSize)

	headers := sess.Table.Headers()
	if col < 0 || col >= len(headers) {
		writeJSON(w, http.StatusOK, columnResponse{Index: col, Values: []string{}})
		return
	}

	scanner := display.NewColumnScanner(1)
	values := make([]string, 0, limit)
	cell := make([]string, 1)
	err = sess.Table.EachRow(func(i int, row []string) bool {
		cell[0] = ""
		if col < len(row) {
			cell[0] = row[col]
		}
		scanner.Add(cell)
		if i < limit {
			values = append(values, cell[0])
		}
		return r.Context().Err() == nil
	})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	meta, err := scanner.Describe(r.Context(), headers[col:col+1])
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, columnResponse{
		Index:    col,
		Metadata: meta[0],
		Values:   values,
	})
}

// session resolves {id} or writes the error response.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.service.Session(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return nil, false
	}
	return sess, true
}

func decodeOpenRequest(w http.ResponseWriter, r *http.Request) (openRequest, error) {
	var req openRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: decode body: %v", core.ErrInvalidRequest, err)
	}
	return req, nil
}

// pathInt parses a URL parameter as an integer. Negative values are allowed;
// the table answers them with empty results.
func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidRequest, name)
	}
	return v, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, defaultVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidRequest, name)
	}
	return v, nil
}

// wantsFormatted reports whether ?format= asks for display-cleaned cells.
func wantsFormatted(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("format"))
	return err == nil && v
}

func formatRow(row []string) {
	for i, v := range row {
		row[i] = display.FormatCell(v)
	}
}
