// Package acstub is an in-memory stand-in for the ActiveCampaign v3
// endpoints the job calls. It backs the local stub-api binary and the
// end-to-end tests.
package acstub

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/contacts"
	"github.com/hri/contact-sync/internal/pkg/httputil"
)

// MaxPayloadBytes is the bulk import body limit the stub enforces.
const MaxPayloadBytes = 400000

// Contact is a stored contact.
type Contact struct {
	activecampaign.Contact
	Status activecampaign.Status
	Fields map[string]string
	Lists  []string
	Tags   []string
}

// Server holds the fake account state.
type Server struct {
	token string

	mu          sync.Mutex
	contacts    map[string]*Contact
	byEmail     map[string]string
	nextID      int
	imports     []ImportCall
	failImports []int
	requests    map[string]int
}

// ImportCall records one accepted bulk import.
type ImportCall struct {
	BatchID string
	Count   int
	Bytes   int
}

// New creates an empty account. Requests must carry token in the Api-Token
// header unless token is empty.
func New(token string) *Server {
	return &Server{
		token:    token,
		contacts: make(map[string]*Contact),
		byEmail:  make(map[string]string),
		nextID:   1,
		requests: make(map[string]int),
	}
}

// Seed stores c, assigning an id when c.ID is empty, and returns the id.
func (s *Server) Seed(c Contact) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(c)
}

func (s *Server) put(c Contact) string {
	if c.ID == "" {
		c.ID = strconv.Itoa(s.nextID)
		s.nextID++
	} else if n, err := strconv.Atoi(c.ID); err == nil && n >= s.nextID {
		s.nextID = n + 1
	}
	if c.Fields == nil {
		c.Fields = make(map[string]string)
	}
	stored := c
	s.contacts[c.ID] = &stored
	s.byEmail[c.Email] = c.ID
	return c.ID
}

// FailImports makes the next n bulk imports answer with status.
func (s *Server) FailImports(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failImports = append(s.failImports, status)
	}
}

// Imports returns the accepted bulk import calls.
func (s *Server) Imports() []ImportCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImportCall(nil), s.imports...)
}

// Lookup returns a copy of the contact with the given email.
func (s *Server) Lookup(email string) (Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Contact{}, false
	}
	return *s.contacts[id], true
}

// Requests returns how many requests hit the named route
// ("list", "get" or "import").
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Handler returns the router. Routes are mounted under /api/3.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OK(w, map[string]string{"status": "healthy", "service": "acstub"})
	})

	r.Route("/api/3", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/contacts", s.listContacts)
		r.Get("/contacts/{id}", s.getContact)
		r.Post("/import/bulk_import", s.bulkImport)
	})
	return r
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Api-Token") != s.token {
			httputil.Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.requests[route]++
	s.mu.Unlock()
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	s.count("list")

	q := r.URL.Query()
	status := activecampaign.StatusAny
	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid status")
			return
		}
		status = activecampaign.Status(n)
	}
	limit := intParam(q.Get("limit"), 20)
	if limit > 100 {
		limit = 100
	}
	offset := intParam(q.Get("offset"), 0)

	s.mu.Lock()
	var matched []activecampaign.Contact
	for _, c := range s.sorted() {
		if status == activecampaign.StatusAny || c.Status == status {
			matched = append(matched, c.Contact)
		}
	}
	s.mu.Unlock()

	total := len(matched)
	page := []activecampaign.Contact{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = matched[offset:end]
	}

	httputil.OK(w, map[string]any{
		"contacts": page,
		"meta":     map[string]string{"total": strconv.Itoa(total)},
	})
}

func (s *Server) getContact(w http.ResponseWriter, r *http.Request) {
	s.count("get")
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	c, ok := s.contacts[id]
	var resp activecampaign.ContactDetailResponse
	if ok {
		resp.Contact = c.Contact
		keys := make([]string, 0, len(c.Fields))
		for k := range c.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			resp.FieldValues = append(resp.FieldValues, activecampaign.FieldValue{Contact: id, Field: k, Value: c.Fields[k]})
		}
	}
	s.mu.Unlock()

	if !ok {
		httputil.NotFound(w, "No Result found for Subscriber with id "+id)
		return
	}
	httputil.OK(w, resp)
}

func (s *Server) bulkImport(w http.ResponseWriter, r *http.Request) {
	s.count("import")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(body) > MaxPayloadBytes {
		io.Copy(io.Discard, r.Body)
		httputil.Error(w, http.StatusRequestEntityTooLarge, "payload exceeds 400000 bytes")
		return
	}

	s.mu.Lock()
	if len(s.failImports) > 0 {
		status := s.failImports[0]
		s.failImports = s.failImports[1:]
		s.mu.Unlock()
		httputil.Error(w, status, "injected failure")
		return
	}
	s.mu.Unlock()

	var req struct {
		Contacts []contacts.Record `json:"contacts"`
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !httputil.Decode(w, r, &req) {
		return
	}

	var reasons []string
	s.mu.Lock()
	for _, rec := range req.Contacts {
		if rec.Email == "" {
			reasons = append(reasons, "contact is missing an email")
			continue
		}
		s.upsert(rec)
	}
	batchID := uuid.NewString()
	queued := len(req.Contacts) - len(reasons)
	s.imports = append(s.imports, ImportCall{BatchID: batchID, Count: queued, Bytes: len(body)})
	s.mu.Unlock()

	httputil.OK(w, activecampaign.BulkImportResponse{
		Success:        1,
		QueuedContacts: queued,
		BatchID:        batchID,
		Message:        "Contact import queued",
		FailureReasons: reasons,
	})
}

func (s *Server) upsert(rec contacts.Record) {
	c := Contact{Status: activecampaign.StatusActive, Fields: map[string]string{}}
	if id, ok := s.byEmail[rec.Email]; ok {
		c = *s.contacts[id]
	}
	c.Email = rec.Email
	c.FirstName = rec.FirstName
	c.LastName = rec.LastName
	if rec.Phone != "" {
		c.Phone = rec.Phone
	}
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	for _, f := range rec.Fields {
		c.Fields[strconv.Itoa(f.ID)] = f.Value
	}
	c.Tags = mergeUnique(c.Tags, rec.Tags)
	c.Lists = mergeUnique(c.Lists, rec.ListIDs())
	s.put(c)
}

// sorted returns contacts by numeric id. Callers hold s.mu.
func (s *Server) sorted() []*Contact {
	out := make([]*Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

func mergeUnique(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range src {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

func intParam(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
