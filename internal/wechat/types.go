package wechat

// Trade states the gateway reports for a transaction.
const (
	TradeStateSuccess    = "SUCCESS"
	TradeStateRefund     = "REFUND"
	TradeStateNotPay     = "NOTPAY"
	TradeStateClosed     = "CLOSED"
	TradeStateUserPaying = "USERPAYING"
	TradeStatePayError   = "PAYERROR"
	TradeStateRevoked    = "REVOKED"
)

// Amount is the monetary block on the wire. Always integral minor units.
type Amount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency,omitempty"`
}

// Payer identifies the paying user.
type Payer struct {
	OpenID string `json:"openid"`
}

// CreateIntentRequest is the JSAPI prepay request body.
type CreateIntentRequest struct {
	AppID       string `json:"appid"`
	MchID       string `json:"mchid"`
	Description string `json:"description"`
	OutTradeNo  string `json:"out_trade_no"`
	NotifyURL   string `json:"notify_url"`
	Amount      Amount `json:"amount"`
	Payer       Payer  `json:"payer"`
	Attach      string `json:"attach,omitempty"`
}

// createIntentResponse is the only field consumed from the prepay reply.
type createIntentResponse struct {
	PrepayID string `json:"prepay_id"`
}

// PaySessionParams is the payer-side authorization package handed to the
// client to invoke the payment sheet.
type PaySessionParams struct {
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// OrderStatusSnapshot is the gateway's view of a transaction, returned by
// Query. Reading it never mutates local state.
type OrderStatusSnapshot struct {
	OutTradeNo     string `json:"out_trade_no"`
	TransactionID  string `json:"transaction_id"`
	TradeState     string `json:"trade_state"`
	TradeStateDesc string `json:"trade_state_desc"`
	SuccessTime    string `json:"success_time"`
	Amount         Amount `json:"amount"`
	Payer          *Payer `json:"payer,omitempty"`
}

// RefundAmount is the amount block of a refund request.
type RefundAmount struct {
	Refund   int64  `json:"refund"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// RefundRequest is the domestic refund request body.
type RefundRequest struct {
	OutTradeNo  string       `json:"out_trade_no"`
	OutRefundNo string       `json:"out_refund_no"`
	Reason      string       `json:"reason,omitempty"`
	Amount      RefundAmount `json:"amount"`
}

// RefundResult is the gateway's refund acknowledgement.
type RefundResult struct {
	RefundID    string       `json:"refund_id"`
	OutRefundNo string       `json:"out_refund_no"`
	Status      string       `json:"status"`
	Amount      RefundAmount `json:"amount"`
}

// closeRequest is the close-order request body.
type closeRequest struct {
	MchID string `json:"mchid"`
}

// gatewayErrorBody is the error shape for non-2xx replies.
type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncryptedResource is the AEAD envelope inside a notification body.
type EncryptedResource struct {
	Ciphertext     string `json:"ciphertext"`
	Nonce          string `json:"nonce"`
	AssociatedData string `json:"associated_data"`
}

// NotificationBody is the post-parse shape of a notification. The
// signature is always checked against the raw bytes first; this struct is
// only populated afterwards.
type NotificationBody struct {
	ID           string            `json:"id"`
	CreateTime   string            `json:"create_time"`
	EventType    string            `json:"event_type"`
	ResourceType string            `json:"resource_type"`
	Resource     EncryptedResource `json:"resource"`
}

// TransactionResource is the decrypted notification payload.
type TransactionResource struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	SuccessTime   string `json:"success_time"`
	Amount        Amount `json:"amount"`
	Payer         *Payer `json:"payer,omitempty"`
	Attach        string `json:"attach,omitempty"`
}
