package handlers

import (
	"errors"
	"net/http"

	"bumpcontrol/internal/bump"
	"bumpcontrol/internal/custody"
	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/session"
	"bumpcontrol/internal/wallet"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var statusByError = []struct {
	err    error
	status int
}{
	{bump.ErrMissingOwner, http.StatusBadRequest},
	{bump.ErrMissingTarget, http.StatusBadRequest},
	{bump.ErrInvalidNotional, http.StatusBadRequest},
	{bump.ErrInvalidInterval, http.StatusBadRequest},
	{bump.ErrFundingShape, http.StatusBadRequest},
	{ledger.ErrInvalidAmount, http.StatusBadRequest},
	{ledger.ErrMissingReference, http.StatusBadRequest},
	{ledger.ErrInvalidScope, http.StatusBadRequest},
	{custody.ErrDepositRejected, http.StatusBadRequest},

	{session.ErrSessionNotFound, http.StatusNotFound},
	{session.ErrNoRunningSession, http.StatusNotFound},
	{wallet.ErrWalletNotFound, http.StatusNotFound},

	{session.ErrSessionRunning, http.StatusConflict},
	{session.ErrStaleSession, http.StatusConflict},
	{ledger.ErrLedgerConflict, http.StatusConflict},
	{ledger.ErrReferenceConflict, http.StatusConflict},
	{bump.ErrNoWallets, http.StatusConflict},

	{bump.ErrInsufficientTotalCredit, http.StatusPaymentRequired},
	{ledger.ErrInsufficientMain, http.StatusPaymentRequired},

	{bump.ErrPriceUnavailable, http.StatusServiceUnavailable},
	{custody.ErrUnverifiable, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
