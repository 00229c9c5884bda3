package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/security"
)

// Kind classifies a C7 handler failure the way spec.md §7 names them,
// generalizing pkg/security.ErrorKind's SecurityPolicy/SecurityStorage
// pair to the remaining categories the HTTP layer itself can produce.
type Kind string

const (
	KindRuntime       Kind = "Runtime"
	KindHTTP          Kind = "Http"
	KindSerialization Kind = "Serialization"
	KindConfig        Kind = "Config"
)

// Error is the C7 error type: a Kind plus the message the HTTP layer
// surfaces verbatim to the caller.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func runtimeErr(msg string) *Error       { return &Error{Kind: KindRuntime, Msg: msg} }
func serializationErr(msg string) *Error { return &Error{Kind: KindSerialization, Msg: msg} }
func configErr(msg string) *Error        { return &Error{Kind: KindConfig, Msg: msg} }

// writeError maps err to the HTTP status and JSON body spec.md §7
// requires: SecurityPolicy/SecurityStorage and Runtime/Http/Serialization/
// Config all surface as 500 with the error string (SecurityPolicy's
// string already carries the recovery runbook); anything else not
// recognized as one of the typed kinds also falls back to 500 rather
// than leaking a bare Go error type name.
func writeError(c *gin.Context, err error) {
	var secErr *security.Error
	if errors.As(err, &secErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": secErr.Error(), "kind": string(secErr.Kind)})
		return
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": apiErr.Error(), "kind": string(apiErr.Kind)})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "kind": string(KindRuntime)})
}
