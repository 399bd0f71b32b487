// Package client talks to the template server over HTTP. It implements the store the
// designer session depends on and translates HTTP failures into domain error codes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/api/transport"
	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/pkg/logger"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	// Dial overrides how connections are opened; tests dial an in-memory listener.
	Dial   fasthttp.DialFunc
	Logger *zap.Logger
}

type Client struct {
	http    *fasthttp.Client
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                "guild-designer",
			Dial:                opts.Dial,
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
		},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		timeout: opts.Timeout,
		logger:  opts.Logger.Named("client"),
	}
}

// do sends one request. in is marshalled as the JSON body when non-nil; out receives the
// envelope data when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "request cancelled", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reqID := logger.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return domain.WrapError(domain.ErrCodeInvalid, "encode request", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	started := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Warn("template server unreachable",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return domain.WrapError(domain.ErrCodeUnavailable, "template server unreachable", err)
	}

	status := resp.StatusCode()
	c.logger.Debug("template server call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("took", time.Since(started)))

	if status >= http.StatusMultipleChoices {
		return statusError(status, resp.Body())
	}
	if out == nil || status == http.StatusNoContent {
		return nil
	}

	var env transport.RawEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return domain.WrapError(domain.ErrCodeInternal, "decode response", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return domain.WrapError(domain.ErrCodeInternal, "decode response data", err)
	}
	return nil
}

// statusError classifies a non-2xx answer. 403 is the signal the sync engine turns into a
// fork prompt, so it must stay FORBIDDEN.
func statusError(status int, body []byte) error {
	msg := http.StatusText(status)
	var env transport.RawEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		msg = env.Error
	}

	code := domain.ErrCodeInternal
	switch status {
	case http.StatusForbidden:
		code = domain.ErrCodeForbidden
	case http.StatusNotFound:
		code = domain.ErrCodeNotFound
	case http.StatusBadRequest:
		code = domain.ErrCodeInvalid
	case http.StatusUnauthorized:
		code = domain.ErrCodeUnauthorized
	case http.StatusConflict:
		code = domain.ErrCodeConflict
	}
	return domain.NewError(code, fmt.Sprintf("server answered %d: %s", status, msg))
}

func guildPath(guildID string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/templates/")
	b.WriteString(url.PathEscape(guildID))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(p)
	}
	return b.String()
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func (c *Client) ListTemplates(ctx context.Context, guildID string) ([]domain.TemplateSummary, error) {
	var out []domain.TemplateSummary
	if err := c.do(ctx, http.MethodGet, guildPath(guildID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTemplate(ctx context.Context, guildID string, templateID int64) (*domain.Template, error) {
	var out domain.Template
	if err := c.do(ctx, http.MethodGet, guildPath(guildID, id(templateID)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveStructure(ctx context.Context, guildID string, templateID int64, payload domain.StructurePayload) (domain.SaveResult, error) {
	var out domain.SaveResult
	err := c.do(ctx, http.MethodPut, guildPath(guildID, id(templateID), "structure"), payload, &out)
	return out, err
}

func (c *Client) CreateFromStructure(ctx context.Context, guildID string, req domain.ForkRequest) (int64, error) {
	var out transport.TemplateIDResponse
	if err := c.do(ctx, http.MethodPost, guildPath(guildID, "from_structure"), req, &out); err != nil {
		return 0, err
	}
	return out.TemplateID, nil
}

// CaptureSnapshot stores the guild's initial snapshot.
func (c *Client) CaptureSnapshot(ctx context.Context, guildID, name string, structure domain.StructurePayload) (int64, error) {
	var out transport.TemplateIDResponse
	in := transport.SnapshotRequest{Name: name, Structure: structure}
	if err := c.do(ctx, http.MethodPost, guildPath(guildID, "snapshot"), in, &out); err != nil {
		return 0, err
	}
	return out.TemplateID, nil
}

func (c *Client) UpdateMetadata(ctx context.Context, guildID string, templateID int64, name, description string) error {
	in := transport.UpdateMetadataRequest{Name: name, Description: description}
	return c.do(ctx, http.MethodPatch, guildPath(guildID, id(templateID)), in, nil)
}

func (c *Client) Activate(ctx context.Context, guildID string, templateID int64) error {
	return c.do(ctx, http.MethodPost, guildPath(guildID, id(templateID), "activate"), nil, nil)
}

func (c *Client) Delete(ctx context.Context, guildID string, templateID int64) error {
	return c.do(ctx, http.MethodDelete, guildPath(guildID, id(templateID)), nil, nil)
}

func (c *Client) ListShared(ctx context.Context) ([]domain.SharedTemplate, error) {
	var out []domain.SharedTemplate
	if err := c.do(ctx, http.MethodGet, "/templates/shared", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Share(ctx context.Context, guildID string, templateID int64) (domain.ShareResult, error) {
	var out domain.ShareResult
	in := transport.ShareRequest{GuildID: guildID, TemplateID: templateID}
	err := c.do(ctx, http.MethodPost, "/templates/share", in, &out)
	return out, err
}

func (c *Client) CopyShared(ctx context.Context, guildID string, sharedID int64, newName string) (int64, error) {
	var out transport.TemplateIDResponse
	in := transport.CopySharedRequest{GuildID: guildID, SharedTemplateID: sharedID, NewName: newName}
	if err := c.do(ctx, http.MethodPost, "/templates/copy_shared", in, &out); err != nil {
		return 0, err
	}
	return out.TemplateID, nil
}

func (c *Client) DeleteShared(ctx context.Context, sharedID int64) error {
	return c.do(ctx, http.MethodDelete, "/templates/shared/"+id(sharedID), nil, nil)
}

func layoutPath(guildID, page string) string {
	return "/layouts/" + url.PathEscape(guildID) + "/" + url.PathEscape(page)
}

func (c *Client) GetLayout(ctx context.Context, guildID, page string) (domain.Layout, error) {
	var out domain.Layout
	err := c.do(ctx, http.MethodGet, layoutPath(guildID, page), nil, &out)
	return out, err
}

func (c *Client) SaveLayout(ctx context.Context, guildID, page string, items json.RawMessage) error {
	return c.do(ctx, http.MethodPut, layoutPath(guildID, page), transport.LayoutRequest{Items: items}, nil)
}

func (c *Client) DeleteLayout(ctx context.Context, guildID, page string) error {
	return c.do(ctx, http.MethodDelete, layoutPath(guildID, page), nil, nil)
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
