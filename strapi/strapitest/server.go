// Package strapitest runs an in-memory stand-in for the shop's Strapi API.
// It implements the subset of the REST surface the bot uses, with the same
// envelopes, so client, cart and conversation tests exercise real HTTP.
package strapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Token is the API token the server accepts.
const Token = "test-token"

// Product seeds the catalog.
type Product struct {
	Title       string
	Description string
	Price       float64
	ImageURL    string // relative or absolute; a "small" format is derived from it
}

// CartItem is a stored cart line.
type CartItem struct {
	ID         int
	DocumentID string
	Quantity   float64
	Product    string
	Cart       string
}

// Order is a stored order.
type Order struct {
	ID         int
	DocumentID string
	Email      string
	Status     string
	Total      float64
	Items      json.RawMessage
}

type product struct {
	Product
	id    int
	docID string
}

type cart struct {
	id    int
	docID string
	tgID  string
}

// Server is the fake CMS.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int
	products []*product
	carts    []*cart
	items    []*CartItem
	orders   []*Order
	failures map[string]int
	calls    map[string]int
}

// NewServer starts a fake CMS that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		failures: map[string]int{},
		calls:    map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", s.listProducts)
	mux.HandleFunc("GET /api/products/{id}", s.getProduct)
	mux.HandleFunc("GET /api/carts", s.listCarts)
	mux.HandleFunc("POST /api/carts", s.createCart)
	mux.HandleFunc("GET /api/carts/{id}", s.getCart)
	mux.HandleFunc("POST /api/cart-products", s.createItem)
	mux.HandleFunc("PUT /api/cart-products/{id}", s.updateItem)
	mux.HandleFunc("DELETE /api/cart-products/{id}", s.deleteItem)
	mux.HandleFunc("POST /api/orders", s.createOrder)

	s.Server = httptest.NewServer(s.middleware(mux))
	t.Cleanup(s.Close)
	return s
}

// AddProduct seeds a product and returns its document id.
func (s *Server) AddProduct(p Product) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &product{Product: p, id: s.newID(), docID: uuid.NewString()}
	s.products = append(s.products, rec)
	return rec.docID
}

// DeleteProduct removes a product. Cart lines pointing at it stay and are
// rendered with a null product, as Strapi does.
func (s *Server) DeleteProduct(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.docID == docID {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return
		}
	}
}

// FailNext makes the next n requests for method and collection answer 500.
func (s *Server) FailNext(method, collection string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+collection] = n
}

// Calls returns how many requests reached method and collection.
func (s *Server) Calls(method, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+collection]
}

// CartCount returns the number of stored carts.
func (s *Server) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

// Items returns a copy of the cart lines owned by the given Telegram user.
func (s *Server) Items(tgID string) []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CartItem
	for _, c := range s.carts {
		if c.tgID != tgID {
			continue
		}
		for _, it := range s.items {
			if it.Cart == c.docID {
				out = append(out, *it)
			}
		}
	}
	return out
}

// Orders returns a copy of the stored orders.
func (s *Server) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

func (s *Server) newID() int {
	s.nextID++
	return s.nextID
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collection := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/api/"), "/", 2)[0]
		key := r.Method + " " + collection

		s.mu.Lock()
		s.calls[key]++
		fail := s.failures[key] > 0
		if fail {
			s.failures[key]--
		}
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "UnauthorizedError", "Missing or invalid credentials")
			return
		}
		if fail {
			writeError(w, http.StatusInternalServerError, "InternalServerError", "Internal Server Error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]interface{}{
		"data": nil,
		"error": map[string]interface{}{
			"status":  status,
			"name":    name,
			"message": message,
			"details": map[string]interface{}{},
		},
	})
}

func decodeData(r *http.Request, v interface{}) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(env.Data, v)
}

func paginate(r *http.Request, total int) (start, end int, meta map[string]interface{}) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("pagination[page]"))
	size, _ := strconv.Atoi(q.Get("pagination[pageSize]"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	pageCount := (total + size - 1) / size
	start = (page - 1) * size
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end, map[string]interface{}{
		"pagination": map[string]interface{}{
			"page":      page,
			"pageSize":  size,
			"pageCount": pageCount,
			"total":     total,
		},
	}
}

func (p *product) render() map[string]interface{} {
	out := map[string]interface{}{
		"id":          p.id,
		"documentId":  p.docID,
		"title":       p.Title,
		"description": p.Description,
		"price":       p.Price,
		"image":       nil,
	}
	if p.ImageURL != "" {
		out["image"] = map[string]interface{}{
			"url": p.ImageURL,
			"formats": map[string]interface{}{
				"small": map[string]interface{}{"url": smallURL(p.ImageURL)},
			},
		}
	}
	return out
}

// smallURL mimics Strapi's naming of generated formats: /uploads/a.jpg -> /uploads/small_a.jpg.
func smallURL(u string) string {
	dir, file := path.Split(u)
	return dir + "small_" + file
}

func (s *Server) findProduct(docID string) *product {
	for _, p := range s.products {
		if p.docID == docID {
			return p
		}
	}
	return nil
}

func (s *Server) findCart(docID string) *cart {
	for _, c := range s.carts {
		if c.docID == docID {
			return c
		}
	}
	return nil
}

func (s *Server) renderItem(it *CartItem, withProduct bool) map[string]interface{} {
	out := map[string]interface{}{
		"id":         it.ID,
		"documentId": it.DocumentID,
		"quantity":   it.Quantity,
	}
	if withProduct {
		if p := s.findProduct(it.Product); p != nil {
			out["product"] = p.render()
		} else {
			out["product"] = nil
		}
	}
	return out
}

func (s *Server) renderCart(c *cart, populate bool) map[string]interface{} {
	out := map[string]interface{}{
		"id":         c.id,
		"documentId": c.docID,
		"tg_id":      c.tgID,
	}
	if populate {
		lines := []map[string]interface{}{}
		for _, it := range s.items {
			if it.Cart == c.docID {
				lines = append(lines, s.renderItem(it, true))
			}
		}
		out["cart_products"] = lines
	}
	return out
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]*product(nil), s.products...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	start, end, meta := paginate(r, len(sorted))
	data := make([]map[string]interface{}, 0, end-start)
	for _, p := range sorted[start:end] {
		data = append(data, p.render())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data, "meta": meta})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findProduct(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": p.render(), "meta": map[string]interface{}{}})
}

func (s *Server) listCarts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	tgID, filtered := q["filters[tg_id][$eq]"]
	populate := q.Get("populate[cart_products][populate][product]") == "true" || q.Get("populate") == "*"

	var matched []*cart
	for _, c := range s.carts {
		if filtered && c.tgID != tgID[0] {
			continue
		}
		matched = append(matched, c)
	}

	start, end, meta := paginate(r, len(matched))
	data := make([]map[string]interface{}, 0, end-start)
	for _, c := range matched[start:end] {
		data = append(data, s.renderCart(c, populate))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data, "meta": meta})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findCart(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.renderCart(c, true), "meta": map[string]interface{}{}})
}

func (s *Server) createCart(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TgID string `json:"tg_id"`
	}
	if err := decodeData(r, &in); err != nil || in.TgID == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "tg_id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := &cart{id: s.newID(), docID: uuid.NewString(), tgID: in.TgID}
	s.carts = append(s.carts, c)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": s.renderCart(c, false), "meta": map[string]interface{}{}})
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity float64 `json:"quantity"`
		Product  string  `json:"product"`
		Cart     string  `json:"cart"`
	}
	if err := decodeData(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findProduct(in.Product) == nil || s.findCart(in.Cart) == nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "Invalid relations")
		return
	}
	it := &CartItem{ID: s.newID(), DocumentID: uuid.NewString(), Quantity: in.Quantity, Product: in.Product, Cart: in.Cart}
	s.items = append(s.items, it)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": s.renderItem(it, false), "meta": map[string]interface{}{}})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity *float64 `json:"quantity"`
	}
	if err := decodeData(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.DocumentID == r.PathValue("id") {
			if in.Quantity != nil {
				it.Quantity = *in.Quantity
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.renderItem(it, false), "meta": map[string]interface{}{}})
			return
		}
	}
	writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.DocumentID == r.PathValue("id") {
			s.items = append(s.items[:i], s.items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email  string          `json:"email"`
		Status string          `json:"order_status"`
		Total  float64         `json:"total"`
		Items  json.RawMessage `json:"items"`
	}
	if err := decodeData(r, &in); err != nil || in.Email == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o := &Order{ID: s.newID(), DocumentID: uuid.NewString(), Email: in.Email, Status: in.Status, Total: in.Total, Items: in.Items}
	s.orders = append(s.orders, o)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"id":           o.ID,
			"documentId":   o.DocumentID,
			"email":        o.Email,
			"order_status": o.Status,
			"total":        o.Total,
			"items":        o.Items,
		},
		"meta": map[string]interface{}{},
	})
}
