// Package tracker implements the HTTP tracker announce request and response
// parsing described in BEP 3: percent-encoded raw info hash and peer id,
// compact or dictionary-form peer lists, and retry with exponential backoff
// on transport errors.
package tracker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Event is the tracker announce event parameter.
type Event string

const (
	Started   Event = "started"
	Stopped   Event = "stopped"
	Completed Event = "completed"
)

// initialBackoff, backoffCap and maxAttempts govern the retry policy for
// transport errors: 2s, 4s, 8s, ..., capped at 60s.
const (
	initialBackoff = 2 * time.Second
	backoffCap     = 60 * time.Second
	maxAttempts    = 8
)

// Params are the query parameters of an announce request.
type Params struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	TrackerID  string // carried from a previous response, if any
}

// BuildURL constructs the full announce GET URL. info_hash and peer_id are
// percent-encoded byte-by-byte, never treated as UTF-8 text, since they are
// raw 20-byte digests that may contain bytes invalid in any text encoding.
func BuildURL(announce string, p Params) (string, error) {
	base, err := url.Parse(announce)
	if err != nil {
		return "", errors.Wrap(err, "tracker: parse announce url")
	}

	values := url.Values{
		"port":       {strconv.Itoa(int(p.Port))},
		"uploaded":   {strconv.FormatInt(p.Uploaded, 10)},
		"downloaded": {strconv.FormatInt(p.Downloaded, 10)},
		"left":       {strconv.FormatInt(p.Left, 10)},
		"compact":    {"1"},
	}
	if p.Event != "" {
		values.Set("event", string(p.Event))
	}
	if p.TrackerID != "" {
		values.Set("trackerid", p.TrackerID)
	}

	query := values.Encode() +
		"&info_hash=" + percentEncodeBytes(p.InfoHash[:]) +
		"&peer_id=" + percentEncodeBytes(p.PeerID[:])

	base.RawQuery = query
	return base.String(), nil
}

// percentEncodeBytes percent-encodes every byte, regardless of whether it is
// a "safe" ASCII character, so the raw digest round-trips exactly.
func percentEncodeBytes(b []byte) string {
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		out = append(out, '%')
		out = append(out, hexDigit(c>>4), hexDigit(c&0xF))
	}
	return string(out)
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

// Announce issues the tracker GET request, retrying transport errors with
// exponential backoff (2s, 4s, 8s, ... capped at 60s) up to maxAttempts
// times. It returns TrackerFailure immediately (no retry) if the tracker
// itself responds with a bencoded failure reason, since that is not a
// transport problem backoff can fix.
func Announce(ctx context.Context, client *http.Client, announce string, params Params) (*Response, error) {
	reqURL, err := BuildURL(announce, params)
	if err != nil {
		return nil, err
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := doAnnounce(ctx, client, reqURL)
		if err == nil {
			return resp, nil
		}

		var failure *TrackerFailure
		if errors.As(err, &failure) {
			return nil, err
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff,
			"error":   err,
		}).Warn("tracker: announce attempt failed, retrying")

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "tracker: announce cancelled while backing off")
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}

	return nil, errors.Wrap(lastErr, "tracker: announce transport error")
}

func doAnnounce(ctx context.Context, client *http.Client, reqURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tracker: unexpected status %s", resp.Status)
	}

	parsed, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// DefaultClient is a reasonable HTTP client for announce requests: a bounded
// overall timeout so a single attempt can't hang forever and starve the
// retry loop's own backoff accounting.
var DefaultClient = &http.Client{Timeout: 15 * time.Second}
