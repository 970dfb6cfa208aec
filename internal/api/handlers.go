/**
 * @description
 * This file contains the HTTP handlers for the engagement-service's
 * verification endpoint. Handlers parse incoming requests, call the
 * application service, and write plain-text responses the user sees in their
 * browser.
 *
 * @dependencies
 * - log, net/http, strconv, strings: Standard Go libraries.
 * - internal/app, internal/store: Service logic and custom errors.
 */

package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/exoboost/engagement-service/internal/store"
)

// Verifier is the subset of the application service the HTTP layer needs.
type Verifier interface {
	Verify(ctx context.Context, userID int64, ip, deviceID string) (string, error)
}

// VerifyHandlers holds the application service that handlers will use.
type VerifyHandlers struct {
	verifier Verifier
}

// NewVerifyHandlers creates the handler set for the verification server.
func NewVerifyHandlers(verifier Verifier) *VerifyHandlers {
	return &VerifyHandlers{verifier: verifier}
}

const (
	verifiedMessage = "Verification successful. You may return to Telegram."
	blockedMessage  = "Your account has been flagged due to IP/device duplication and blocked. Contact support."
)

// VerifyHandler handles GET /verify. It accepts the user id under any of the
// query keys `u`, `user` or `uid`, captures the caller's IP and device
// fingerprint, and reports the verification outcome as plain text.
func (h *VerifyHandlers) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	uid := parseUserIDParam(r)
	if uid == 0 {
		http.Error(w, "Missing user id", http.StatusBadRequest)
		return
	}

	ip := ExtractIP(r)
	device := DeviceFingerprint(r)

	result, err := h.verifier.Verify(r.Context(), uid, ip, device)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Unknown ids have no account to act on; they get the success page
			// rather than a response that confirms which ids exist.
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(verifiedMessage))
			return
		}
		log.Printf("level=error component=api op=verify user_id=%d err=%v", uid, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if result == "blocked" {
		w.Write([]byte(blockedMessage))
		return
	}
	w.Write([]byte(verifiedMessage))
}

func parseUserIDParam(r *http.Request) int64 {
	q := r.URL.Query()
	for _, key := range []string{"u", "user", "uid"} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		return id
	}
	return 0
}
