// Package linking exposes the account-linking flow over HTTP: submit
// credentials once, poll for MFA approval, then sync transactions out of the
// authenticated portal session.
package linking

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/gateway"
	"github.com/lionlink/lionlink/ledger"
	"github.com/lionlink/lionlink/portal"
	"github.com/lionlink/lionlink/session"
	"github.com/lionlink/lionlink/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lionlink/lionlink/browser"
)

// Service wires the linking endpoints to their collaborators.
type Service struct {
	Db          *gorm.DB
	Registry    *session.Registry
	Launcher    browser.Launcher
	Flow        *portal.Flow
	Coordinator *ledger.Coordinator
	Logger      *logrus.Logger
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login starts a linking attempt: drives the provider's credential form in a
// fresh browser and either finishes immediately (no MFA) or parks the
// browser on the challenge page and hands the client a session id to poll.
//
// POST /penn-state/login
func (s *Service) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error(), "code": "validation_error"})
		return
	}
	userID := gateway.UserID(c)

	handle, err := s.Launcher.Launch(c.Request.Context())
	if err != nil {
		s.Logger.WithField("error", err.Error()).Error("browser launch failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "could not start a browser", "code": "internal_error"})
		return
	}

	outcome, err := s.Flow.SubmitCredentials(c.Request.Context(), handle, req.Email, req.Password)
	if err != nil {
		_ = handle.Close()
		c.JSON(apperr.Status(err), gin.H{"success": false, "message": apperr.Message(err), "code": apperr.Code(err)})
		return
	}

	switch outcome {
	case portal.OutcomeAuthenticated:
		// no second factor: finish the landing now and keep the session
		// bound to the user for the sync that follows. No session id goes
		// back to the client.
		active, err := s.Flow.ResolveLanding(c.Request.Context(), handle)
		if err != nil {
			// authenticated but the portal itself is unreachable; report
			// the partial success so the client can message it
			_ = handle.Close()
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"data":    gin.H{"requiresMFA": false, "linkedAccount": false},
				"message": apperr.Message(err),
				"code":    apperr.Code(err),
			})
			return
		}
		sess, regErr := s.Registry.Register(userID, handle, session.StateApproved)
		if regErr != nil {
			_ = handle.Close()
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": regErr.Error(), "code": "internal_error"})
			return
		}
		sess.SetActive(active)
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"requiresMFA": false, "linkedAccount": true}})

	case portal.OutcomeMFARequired:
		sess, regErr := s.Registry.Register(userID, handle, session.StateAwaitingMFA)
		if regErr != nil {
			_ = handle.Close()
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": regErr.Error(), "code": "internal_error"})
			return
		}
		data := gin.H{"requiresMFA": true, "sessionId": sess.ID}
		if code, ok := s.Flow.ExtractNumberMatch(c.Request.Context(), handle); ok {
			sess.NumberMatchCode = code
			data["numberMatchCode"] = code
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
	}
}

// CheckApproval performs one non-blocking probe of a pending MFA challenge.
// Terminal answers are sticky: once a session has been seen approved or
// denied, every later poll repeats that answer until the session is evicted.
//
// GET /penn-state/check-approval?sessionId=...
func (s *Service) CheckApproval(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "sessionId is required", "code": "bad_request"})
		return
	}
	sess, err := s.Registry.Get(sessionID)
	if err != nil {
		// evicted or the process restarted; the client restarts from
		// credentials
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "requires_restart", "requiresRestart": true}})
		return
	}

	sess.Lock()
	defer sess.Unlock()

	switch sess.State() {
	case session.StateApproved:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "approved", "linkedAccount": true}})
		return
	case session.StateDenied:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "denied"}})
		return
	case session.StateExpired, session.StateError:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "requires_restart", "requiresRestart": true}})
		return
	}

	switch s.Flow.ProbeChallenge(c.Request.Context(), sess.Handle()) {
	case portal.ChallengeDenied:
		if err := s.Registry.Transition(sess, session.StateDenied); err != nil {
			s.Logger.WithField("error", err.Error()).Error("transition to denied failed")
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "denied"}})
	case portal.ChallengeApproved:
		active, landErr := s.Flow.ResolveLanding(c.Request.Context(), sess.Handle())
		if err := s.Registry.Transition(sess, session.StateApproved); err != nil {
			s.Logger.WithField("error", err.Error()).Error("transition to approved failed")
		}
		if landErr != nil {
			// approval happened; the portal just is not reachable right
			// now. Report the approval and let sync surface the failure.
			s.Logger.WithFields(logrus.Fields{"session_id": sess.ID, "error": landErr.Error()}).Warn("portal landing failed after approval")
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "approved", "linkedAccount": false}, "code": apperr.Code(landErr)})
			return
		}
		sess.SetActive(active)
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "approved", "linkedAccount": true}})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "waiting"}})
	}
}

type syncRequest struct {
	FullSync  bool   `json:"fullSync"`
	StartDate string `json:"startDate" binding:"omitempty,syncday"`
	EndDate   string `json:"endDate" binding:"omitempty,syncday"`
}

// SyncTransactions extracts the window from the user's live approved session
// and persists what is new.
//
// POST /penn-state/transactions/sync
func (s *Service) SyncTransactions(c *gin.Context) {
	userID := gateway.UserID(c)
	user, err := store.GetUser(userID, s.Db)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found", "code": "not_found"})
		return
	}

	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error(), "code": "validation_error"})
			return
		}
	}
	opts := ledger.Options{Full: req.FullSync}
	if t, ok := parseDay(req.StartDate); ok {
		opts.StartDate = &t
	}
	if t, ok := parseDay(req.EndDate); ok {
		opts.EndDate = &t
	}

	sess, ok := s.Registry.ApprovedForUser(userID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": apperr.ErrNotAuthenticated.Message, "code": apperr.ErrNotAuthenticated.Code})
		return
	}

	// one in-flight operation per browser handle
	sess.Lock()
	result, err := s.Coordinator.Sync(c.Request.Context(), user, sess.Active(), opts)
	sess.Unlock()
	if err != nil {
		c.JSON(apperr.Status(err), gin.H{"success": false, "data": gin.H{"syncResult": result}, "message": apperr.Message(err), "code": apperr.Code(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"syncResult": result}})
}

// SyncStatus reports the linked-account summary.
//
// GET /penn-state/transactions/sync-status
func (s *Service) SyncStatus(c *gin.Context) {
	userID := gateway.UserID(c)
	user, err := store.GetUser(userID, s.Db)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found", "code": "not_found"})
		return
	}
	status, err := s.Coordinator.SyncStatus(user)
	if err != nil {
		c.JSON(apperr.Status(err), gin.H{"success": false, "message": apperr.Message(err), "code": apperr.Code(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"syncStatus": status}})
}

// Unlink drops the account link: evicts any live session, bulk-deletes the
// user's records and clears the linked status.
//
// POST /penn-state/unlink
func (s *Service) Unlink(c *gin.Context) {
	userID := gateway.UserID(c)
	s.Registry.EvictUser(userID)
	if err := store.UnlinkUser(s.Db, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error(), "code": "database_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"unlinked": true}})
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
