// Package server contains misc server utilities shared by the HTTP surface.
package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// BoolT is a struct with a single Bool field, {"bool": true}
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a struct with a single Str field, {"str": "..."}
type StrT struct {
	Str string `json:"str"`
}

// MethodPath is a struct containing an HTTP method and path, the key of a RouteTable
type MethodPath struct {
	Method, Path string
}

// RouteTable maps method+path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes of the table as "METHOD path", sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Strings(routes)
	return routes
}

// Bind registers every route of the table on r
func (rt RouteTable) Bind(r chi.Router) {
	for k, v := range rt {
		r.MethodFunc(k.Method, k.Path, v)
	}
}

// ReplyJSON encodes v as the JSON body of a 200 response
func ReplyJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
