package wsnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Ninjadash54/simonsays/internal/registry"
)

// registryClient talks to the host's /registry routes.
type registryClient struct {
	base string
	http *http.Client
}

type browseRes struct {
	Service string           `json:"service"`
	Peers   []registry.Entry `json:"peers"`
}

func (c *registryClient) peersURL(service string) string {
	return strings.TrimRight(c.base, "/") + "/registry/" + url.PathEscape(service) + "/peers"
}

func (c *registryClient) advertise(ctx context.Context, service string, e registry.Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.peersURL(service)+"/"+url.PathEscape(e.ID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *registryClient) browse(ctx context.Context, service string) ([]registry.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.peersURL(service), nil)
	if err != nil {
		return nil, err
	}
	var res browseRes
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return res.Peers, nil
}

func (c *registryClient) withdraw(ctx context.Context, service, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.peersURL(service)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *registryClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("registry %s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
