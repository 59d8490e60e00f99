package api

import (
	"log"
	"net/http"

	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/counterdesk/internal/platform/errors"
	errori18n "github.com/louisbranch/counterdesk/internal/platform/errors/i18n"
	"github.com/louisbranch/counterdesk/internal/platform/httpx"
	i18ncatalog "github.com/louisbranch/counterdesk/internal/platform/i18n/catalog"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     apperrors.Code    `json:"code"`
	Class    apperrors.Class   `json:"class"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// writeError renders err from the locale catalog. Errors without a code
// are logged and never shown to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeUnknown
	var metadata map[string]string
	if appErr, ok := apperrors.As(err); ok {
		code = appErr.Code
		metadata = appErr.Metadata
	}
	status := code.HTTPStatus()
	if code == apperrors.CodeUnknown || status >= http.StatusInternalServerError {
		log.Printf("casework: request failed method=%s path=%s request_id=%s code=%s err=%v",
			r.Method, r.URL.Path, w.Header().Get(httpx.HeaderRequestID), code, err)
	}

	body := errorBody{
		Code:     code,
		Class:    code.Class(),
		Message:  errori18n.GetCatalog(requestLocale(r)).Format(string(code), metadata),
		Metadata: metadata,
	}
	if code == apperrors.CodeUnknown {
		body.Metadata = nil
	}
	if writeErr := httpx.WriteJSON(w, status, errorEnvelope{Error: body}); writeErr != nil {
		log.Printf("casework: write error response: %v", writeErr)
	}
}

// requestLocale picks the first Accept-Language tag; the catalog falls back
// to the base locale for anything it does not carry.
func requestLocale(r *http.Request) string {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return i18ncatalog.BaseLocale
	}
	return tags[0].String()
}

func invalidBody(err error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeInvalidArgument, "invalid request body",
		map[string]string{"Field": "body", "Reason": "expected one JSON object with known fields"}, err)
}

func writeResult(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if writeErr := httpx.WriteJSON(w, status, payload); writeErr != nil {
		log.Printf("casework: write response: %v", writeErr)
	}
}
