package metrics

import (
	"net/http"

	"github.com/arl/statsviz"
)

// Serve exposes runtime charts at /debug/statsviz/ on addr. It blocks like
// http.ListenAndServe.
func Serve(addr string) error {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return err
	}
	return http.ListenAndServe(addr, mux)
}
