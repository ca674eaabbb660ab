// Package registryadapter implements the Registry Adapter (spec §4.A):
// authenticated REST calls to the Nacos registry/config-center, with
// transparent token caching and refresh.
//
// Every public method here returns either (content, nil) or (zero,
// err) — the spec's "{ok, content} or {error, message}" — never
// panics; failures never cross this boundary as anything but a Go
// error. The adapter is the component the rest of the host treats as a
// synchronous collaborator (spec §5): callers are expected to keep
// these calls short-lived or run them off the main control-flow
// goroutine, exactly as the teacher's EtcdRegistry.Register spins off a
// background KeepAlive goroutine rather than blocking its caller
// forever.
package registryadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"servicehost/internal/logging"
)

// callCeiling is the upper bound on any single registry call (spec §5:
// "Registry adapter calls may be implemented with a 60s ceiling").
const callCeiling = 60 * time.Second

// Adapter is the Registry Adapter. It is safe for concurrent use: the
// only mutable state is the cached token, which is replaced atomically.
type Adapter struct {
	baseURL  string
	username string
	password string

	httpClient *http.Client
	tokens     tokenBox
	log        logging.Logger
}

// New builds a Registry Adapter targeting baseURL (e.g.
// "http://127.0.0.1:8848").
func New(baseURL, username, password string, log logging.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: callCeiling},
		log:        log,
	}
}

// Login authenticates against the registry and returns the fresh token
// and its TTL. It also updates the adapter's cached token so subsequent
// calls reuse it.
func (a *Adapter) Login(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"username": {a.username},
		"password": {a.password},
	}
	body, _, err := a.rawRequest(ctx, http.MethodPost, "/nacos/v1/auth/login", form, false)
	if err != nil {
		return "", 0, fmt.Errorf("registryadapter: login: %w", err)
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", 0, fmt.Errorf("registryadapter: login: decode response: %w", err)
	}

	ttl := time.Duration(lr.TokenTTL) * time.Second
	a.tokens.store(&token{accessToken: lr.AccessToken, expiresAt: time.Now().Add(ttl)})
	a.log.Info("init", "registry login succeeded")
	return lr.AccessToken, ttl, nil
}

// Token returns a currently-valid access token, transparently logging
// in (or refreshing) as needed. Exposed for collaborators — such as the
// Config Long-Poll Engine — that need to attach the token to a request
// they build themselves.
func (a *Adapter) Token(ctx context.Context) (string, error) {
	return a.ensureToken(ctx)
}

// ensureToken returns a usable access token, transparently logging in
// if none is cached or the cached one is within refreshWindow of expiry.
func (a *Adapter) ensureToken(ctx context.Context) (string, error) {
	t := a.tokens.load()
	if !t.nearExpiry(time.Now()) {
		return t.accessToken, nil
	}
	accessToken, _, err := a.Login(ctx)
	if err != nil {
		return "", err
	}
	return accessToken, nil
}

// PublishConfig publishes content under (dataId, group, tenant).
func (a *Adapter) PublishConfig(ctx context.Context, dataID, group, content, tenant string) error {
	form := url.Values{
		"dataId":  {dataID},
		"group":   {group},
		"content": {content},
	}
	if tenant != "" {
		form.Set("tenant", tenant)
	}
	_, _, err := a.authedRequest(ctx, http.MethodPost, "/nacos/v1/cs/configs", form)
	if err != nil {
		return fmt.Errorf("registryadapter: publishConfig(%s,%s): %w", dataID, group, err)
	}
	return nil
}

// GetConfig fetches the current content for (dataId, group, tenant).
func (a *Adapter) GetConfig(ctx context.Context, dataID, group, tenant string) (string, error) {
	form := url.Values{
		"dataId": {dataID},
		"group":  {group},
	}
	if tenant != "" {
		form.Set("tenant", tenant)
	}
	body, _, err := a.authedRequest(ctx, http.MethodGet, "/nacos/v1/cs/configs", form)
	if err != nil {
		return "", fmt.Errorf("registryadapter: getConfig(%s,%s): %w", dataID, group, err)
	}
	return string(body), nil
}

// CreateInstance registers safeName@ip:port as an instance (spec §4.B).
func (a *Adapter) CreateInstance(ctx context.Context, safeName, ip string, port int, namespace string, metadata map[string]string, weight float64, healthy, ephemeral bool) error {
	form, err := instanceForm(safeName, ip, port, namespace, metadata, weight, ephemeral)
	if err != nil {
		return fmt.Errorf("registryadapter: createInstance(%s): %w", safeName, err)
	}
	form.Set("healthy", strconv.FormatBool(healthy))

	_, _, err = a.authedRequest(ctx, http.MethodPost, "/nacos/v1/ns/instance", form)
	if err != nil {
		return fmt.Errorf("registryadapter: createInstance(%s): %w", safeName, err)
	}
	return nil
}

// SendBeat emits one heartbeat for safeName@ip:port (spec §4.D).
func (a *Adapter) SendBeat(ctx context.Context, safeName, ip string, port int, namespace string, metadata map[string]string, ephemeral bool, weight float64, interval time.Duration) error {
	beat := map[string]interface{}{
		"serviceName": qualifiedServiceName("", safeName),
		"ip":          ip,
		"port":        port,
		"weight":      weight,
		"ephemeral":   ephemeral,
		"metadata":    metadata,
	}
	if interval > 0 {
		beat["scheduled"] = int64(interval / time.Millisecond)
	}
	beatJSON, err := json.Marshal(beat)
	if err != nil {
		return fmt.Errorf("registryadapter: sendBeat(%s): %w", safeName, err)
	}

	form := url.Values{
		"serviceName": {qualifiedServiceName("", safeName)},
		"namespaceId": {namespace},
		"ip":          {ip},
		"port":        {strconv.Itoa(port)},
		"beat":        {string(beatJSON)},
	}
	_, _, err = a.authedRequest(ctx, http.MethodPut, "/nacos/v1/ns/instance/beat", form)
	if err != nil {
		return fmt.Errorf("registryadapter: sendBeat(%s): %w", safeName, err)
	}
	return nil
}

// UpdateWeight updates the advertised weight for safeName@ip:port (spec
// §4.C).
func (a *Adapter) UpdateWeight(ctx context.Context, safeName, ip string, port int, weight float64, namespace string, ephemeral bool, metadata map[string]string) error {
	form, err := instanceForm(safeName, ip, port, namespace, metadata, weight, ephemeral)
	if err != nil {
		return fmt.Errorf("registryadapter: updateWeight(%s): %w", safeName, err)
	}

	_, _, err = a.authedRequest(ctx, http.MethodPut, "/nacos/v1/ns/instance", form)
	if err != nil {
		return fmt.Errorf("registryadapter: updateWeight(%s): %w", safeName, err)
	}
	return nil
}

// RemoveInstance deregisters safeName@ip:port (spec §6 Shutdown).
func (a *Adapter) RemoveInstance(ctx context.Context, safeName, ip string, port int, namespace string, ephemeral bool) error {
	form := url.Values{
		"serviceName": {qualifiedServiceName("", safeName)},
		"namespaceId": {namespace},
		"ip":          {ip},
		"port":        {strconv.Itoa(port)},
		"ephemeral":   {strconv.FormatBool(ephemeral)},
	}
	_, _, err := a.authedRequest(ctx, http.MethodDelete, "/nacos/v1/ns/instance", form)
	if err != nil {
		return fmt.Errorf("registryadapter: removeInstance(%s): %w", safeName, err)
	}
	return nil
}

// GetInstanceList lists instances of safeName, consumed only by
// shutdown/diagnostic paths (spec §4.A).
func (a *Adapter) GetInstanceList(ctx context.Context, safeName, namespace string, healthyOnly bool) ([]Instance, error) {
	form := url.Values{
		"serviceName":  {qualifiedServiceName("", safeName)},
		"namespaceId":  {namespace},
		"healthyOnly":  {strconv.FormatBool(healthyOnly)},
	}
	body, _, err := a.authedRequest(ctx, http.MethodGet, "/nacos/v1/ns/instance/list", form)
	if err != nil {
		return nil, fmt.Errorf("registryadapter: getInstanceList(%s): %w", safeName, err)
	}

	var resp instanceListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("registryadapter: getInstanceList(%s): decode: %w", safeName, err)
	}
	return resp.Hosts, nil
}

func instanceForm(safeName, ip string, port int, namespace string, metadata map[string]string, weight float64, ephemeral bool) (url.Values, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"serviceName": {qualifiedServiceName("", safeName)},
		"namespaceId": {namespace},
		"ip":          {ip},
		"port":        {strconv.Itoa(port)},
		"weight":      {strconv.FormatFloat(weight, 'f', -1, 64)},
		"ephemeral":   {strconv.FormatBool(ephemeral)},
		"metadata":    {string(metaJSON)},
	}, nil
}

// authedRequest attaches the cached (or freshly fetched) access token
// and performs the request, retrying exactly once after a forced
// refresh if the registry rejects it with 401/403 (spec §4.A, §7).
func (a *Adapter) authedRequest(ctx context.Context, method, path string, form url.Values) ([]byte, *http.Response, error) {
	accessToken, err := a.ensureToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	body, resp, err := a.rawRequestWithToken(ctx, method, path, form, accessToken)
	if err == nil {
		return body, resp, nil
	}

	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		a.tokens.store(nil) // force refresh
		accessToken, loginErr := a.ensureToken(ctx)
		if loginErr != nil {
			return nil, nil, &RetryableError{StatusCode: resp.StatusCode, Err: loginErr}
		}
		body, resp2, err2 := a.rawRequestWithToken(ctx, method, path, form, accessToken)
		if err2 != nil {
			code := 0
			if resp2 != nil {
				code = resp2.StatusCode
			}
			return nil, nil, &RetryableError{StatusCode: code, Err: err2}
		}
		return body, resp2, nil
	}

	return nil, resp, err
}

func (a *Adapter) rawRequest(ctx context.Context, method, path string, form url.Values, authed bool) ([]byte, *http.Response, error) {
	return a.rawRequestWithToken(ctx, method, path, form, "")
}

func (a *Adapter) rawRequestWithToken(ctx context.Context, method, path string, form url.Values, accessToken string) ([]byte, *http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, callCeiling)
	defer cancel()

	values := url.Values{}
	for k, vs := range form {
		values[k] = vs
	}
	if accessToken != "" {
		values.Set("accessToken", accessToken)
	}

	var req *http.Request
	var err error
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, a.baseURL+path+"?"+values.Encode(), nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, a.baseURL+path, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, err
	}

	if resp.StatusCode >= 400 {
		return body, resp, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, resp, nil
}
