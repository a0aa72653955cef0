package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/providers"
)

// maxMessageLength bounds raw bodies carried in Unknown categories
const maxMessageLength = 512

var (
	defaultScopeMarkers = []string{
		"insufficient_scope",
		"insufficient scope",
		"missing scope",
		"missing_scopes",
		"required_scopes",
	}
	defaultConnectionMarkers = []string{
		"connection not established",
		"connection has not been established",
		"organization is not connected",
		"no organization connection",
	}

	wwwAuthScope = regexp.MustCompile(`scope="([^"]*)"`)
)

// ErrorClassifier maps provider failures onto connection.ErrorCategory.
// It holds no state besides its rules and is safe for concurrent use.
type ErrorClassifier struct {
	warningHeader     string
	locationHeader    string
	scopeMarkers      []string
	connectionMarkers []string
	transient         map[int]bool
}

// NewErrorClassifier builds a classifier from a provider's rules
func NewErrorClassifier(rules providers.ClassifierRules) *ErrorClassifier {
	c := &ErrorClassifier{
		warningHeader:     rules.RCAWarningHeader,
		locationHeader:    rules.RCALocationHeader,
		scopeMarkers:      lowerAll(rules.ScopeMarkers, defaultScopeMarkers),
		connectionMarkers: lowerAll(rules.ConnectionMarkers, defaultConnectionMarkers),
		transient:         make(map[int]bool),
	}

	statuses := rules.TransientStatuses
	if len(statuses) == 0 {
		statuses = providers.DefaultTransientStatuses
	}
	for _, s := range statuses {
		c.transient[s] = true
	}
	return c
}

// Classify maps an HTTP failure to a category. Rules are checked in a fixed order:
// remediation headers, scope markers, connection markers, 401, transient statuses.
func (c *ErrorClassifier) Classify(status int, header http.Header, body []byte) connection.ErrorCategory {
	if url, ok := c.remediationURL(header); ok {
		return connection.RequiredCustomerAction(url)
	}

	lowered := strings.ToLower(string(body))
	if containsAny(lowered, c.scopeMarkers) || headerMentionsScope(header) {
		return connection.InsufficientScope(missingScopes(header, body))
	}

	if containsAny(lowered, c.connectionMarkers) {
		return connection.ConnectionNotEstablished()
	}

	if status == http.StatusUnauthorized {
		return connection.Unauthorized()
	}

	if c.transient[status] {
		return connection.Transient()
	}

	return connection.Unknown(providerMessage(status, body))
}

// ClassifyError maps any error raised while calling a provider to a category
func (c *ErrorClassifier) ClassifyError(err error) connection.ErrorCategory {
	var httpErr *providers.HTTPError
	if stderrors.As(err, &httpErr) {
		return c.Classify(httpErr.StatusCode, httpErr.Header, httpErr.Body)
	}

	if errors.HasCode(err, errors.ErrCodeAuthExpired) {
		return connection.Unauthorized()
	}

	if isTransientError(err) {
		return connection.Transient()
	}

	return connection.Unknown(truncate(err.Error()))
}

func (c *ErrorClassifier) remediationURL(header http.Header) (string, bool) {
	if c.warningHeader == "" || c.locationHeader == "" || header == nil {
		return "", false
	}
	if header.Get(c.warningHeader) == "" {
		return "", false
	}
	url := strings.TrimSpace(header.Get(c.locationHeader))
	return url, url != ""
}

func isTransientError(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return true
	}
	if errors.HasCode(err, errors.ErrCodeTransient) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}

func headerMentionsScope(header http.Header) bool {
	return strings.Contains(header.Get("WWW-Authenticate"), "insufficient_scope")
}

// missingScopes reads the scopes a provider says are missing, from the JSON body
// first and then from the WWW-Authenticate challenge.
func missingScopes(header http.Header, body []byte) []string {
	var payload map[string]json.RawMessage
	if json.Unmarshal(body, &payload) == nil {
		for _, key := range []string{"missing_scopes", "required_scopes"} {
			if scopes := decodeScopes(payload[key]); len(scopes) > 0 {
				return scopes
			}
		}
	}

	if m := wwwAuthScope.FindStringSubmatch(header.Get("WWW-Authenticate")); m != nil {
		return credential.ParseScope(m[1])
	}
	return []string{}
}

func decodeScopes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return credential.NormalizeScope(list)
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return credential.ParseScope(s)
	}
	return nil
}

// providerMessage extracts a human readable message from common error body shapes
func providerMessage(status int, body []byte) string {
	var payload struct {
		Message          string          `json:"message"`
		ErrorDescription string          `json:"error_description"`
		Error            json.RawMessage `json:"error"`
		Errors           []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return truncate(payload.Message)
		}
		if payload.ErrorDescription != "" {
			return truncate(payload.ErrorDescription)
		}
		var errString string
		if json.Unmarshal(payload.Error, &errString) == nil && errString != "" {
			return truncate(errString)
		}
		var errObject struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &errObject) == nil && errObject.Message != "" {
			return truncate(errObject.Message)
		}
		if len(payload.Errors) > 0 && payload.Errors[0].Message != "" {
			return truncate(payload.Errors[0].Message)
		}
	}

	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return truncate(trimmed)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected provider response"
}

func truncate(s string) string {
	if len(s) <= maxMessageLength {
		return s
	}
	return s[:maxMessageLength] + "..."
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func lowerAll(values, defaults []string) []string {
	if len(values) == 0 {
		values = defaults
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

// Classifiers holds one classifier per catalogued provider
type Classifiers struct {
	byProvider map[string]*ErrorClassifier
	fallback   *ErrorClassifier
}

// NewClassifiers builds classifiers for every provider in the catalog
func NewClassifiers(catalog *providers.Catalog) *Classifiers {
	c := &Classifiers{
		byProvider: make(map[string]*ErrorClassifier),
		fallback:   NewErrorClassifier(providers.ClassifierRules{}),
	}
	for _, id := range catalog.IDs() {
		p, _ := catalog.Get(id)
		c.byProvider[id] = NewErrorClassifier(p.Classifier)
	}
	return c
}

// For returns the classifier of a provider, or one with default rules
func (c *Classifiers) For(providerID string) *ErrorClassifier {
	if cl, ok := c.byProvider[providerID]; ok {
		return cl
	}
	return c.fallback
}
