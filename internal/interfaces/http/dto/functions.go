package dto

// CleanupRequest is the body of POST /functions/v1/order-duplicate-cleanup
type CleanupRequest struct {
	Mode             string `json:"mode" binding:"required,oneof=report cleanup"`
	CancelDuplicates bool   `json:"cancelDuplicates"`
}

// VerifyPaymentRequest is the body of POST /functions/v1/verify-payment
type VerifyPaymentRequest struct {
	SessionID       string `json:"sessionId" binding:"required_without=PaymentIntentID,max=255"`
	PaymentIntentID string `json:"paymentIntentId" binding:"required_without=SessionID,max=255"`
	Retry           bool   `json:"retry"`
}

// CheckOrderStatusRequest carries the order id of POST /functions/v1/check-order-status.
// The id is read from the query string, or from a JSON body when the query omits it.
type CheckOrderStatusRequest struct {
	OrderID string `form:"orderId" json:"orderId" binding:"required,uuid"`
}

// StatusSyncJobsQuery filters GET /functions/v1/status-sync-jobs
type StatusSyncJobsQuery struct {
	OrderID string `form:"orderId" binding:"omitempty,uuid"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
}
