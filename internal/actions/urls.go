package actions

import (
	"errors"
	"fmt"
	"strings"

	"lametricbridge/internal/registry"
)

// ErrNoBaseURL is returned when a relative media URL cannot be
// absolutized because neither a configured base URL nor a host URL is
// available.
var ErrNoBaseURL = errors.New("need an absolute URL but no base_url is configured and the host reports none")

func isAbsoluteURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// absolutizeURL makes raw fetchable by the device. The device can only
// fetch plain HTTP(S) URLs, so relative paths are prefixed with, in
// priority order: the device's configured base URL, the host's internal
// URL, the host's external URL.
func (d *Dispatcher) absolutizeURL(inst *registry.Instance, raw string) (string, error) {
	if isAbsoluteURL(raw) {
		return raw, nil
	}

	base := inst.Config.BaseURL
	if base == "" {
		cfg, err := d.ha.GetConfig()
		if err != nil {
			return "", fmt.Errorf("failed to read host config: %w", err)
		}
		for _, cand := range []string{cfg.InternalURL, cfg.ExternalURL} {
			if cand != "" {
				base = strings.TrimRight(cand, "/")
				break
			}
		}
	}
	if base == "" {
		return "", ErrNoBaseURL
	}

	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return base + raw, nil
}
