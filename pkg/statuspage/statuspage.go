// Package statuspage renders a process's registered HTTP routes as a
// plaintext table, adapted from the teacher's federated-querier status
// handler, for the ad hoc "what does this binary expose" check during
// rollout.
package statuspage

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jedib0t/go-pretty/v6/table"
)

type endpoint struct {
	name  string
	regex string
}

// Handler returns an http.HandlerFunc listing every route registered on r.
// Register it last, after all other routes, so it sees the full set.
func Handler(r *mux.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var endpoints []endpoint

		err := r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
			e := endpoint{}
			if tmpl, err := route.GetPathTemplate(); err == nil {
				e.name = tmpl
			}
			if re, err := route.GetPathRegexp(); err == nil {
				e.regex = re
			}
			endpoints = append(endpoints, e)
			return nil
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("error walking routes: %v", err), http.StatusInternalServerError)
			return
		}

		sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].name < endpoints[j].name })

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"route", "regex"})
		for _, e := range endpoints {
			tw.AppendRow(table.Row{e.name, e.regex})
		}
		tw.AppendSeparator()
		tw.Render()
	}
}
