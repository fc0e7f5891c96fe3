package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func signRequest(authToken, fullURL string, form url.Values) string {
	data := fullURL
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newWebhookEcho(token string) *echo.Echo {
	e := echo.New()
	e.Use(TwilioAuth(token))
	e.POST("/twilio/voice", func(c echo.Context) error {
		params, ok := c.Get(TwilioParamsKey).(map[string]string)
		if !ok {
			return c.String(http.StatusInternalServerError, "no params")
		}
		return c.String(http.StatusOK, params["CallSid"])
	})
	e.POST("/interviews", func(c echo.Context) error {
		return c.String(http.StatusOK, "open")
	})
	return e
}

func TestTwilioAuthAcceptsSignedRequest(t *testing.T) {
	e := newWebhookEcho("tok")
	form := url.Values{"CallSid": {"CA42"}, "From": {"+15550001111"}}

	req := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader(form.Encode()))
	req.Host = "example.org"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", signRequest("tok", "https://example.org/twilio/voice", form))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "CA42" {
		t.Fatalf("handler did not see validated params: %q", rec.Body.String())
	}
}

func TestTwilioAuthRejectsBadSignature(t *testing.T) {
	e := newWebhookEcho("tok")
	form := url.Values{"CallSid": {"CA42"}}

	req := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader(form.Encode()))
	req.Host = "example.org"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", "bogus")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTwilioAuthIgnoresOtherRoutes(t *testing.T) {
	e := newWebhookEcho("tok")
	req := httptest.NewRequest(http.MethodPost, "/interviews", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTwilioAuthUnconfiguredToken(t *testing.T) {
	e := newWebhookEcho("")
	req := httptest.NewRequest(http.MethodPost, "/twilio/voice", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
