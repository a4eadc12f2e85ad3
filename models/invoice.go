package models

import "github.com/google/uuid"

// Invoice is returned when an order is created or bumped. AuthToken is the
// per-order secret needed to manage the order later.
type Invoice struct {
	AuthToken        string           `json:"auth_token"`
	UUID             uuid.UUID        `json:"uuid"`
	LightningInvoice LightningInvoice `json:"lightning_invoice"`
}

type LightningInvoice struct {
	ID          string          `json:"id"`
	Msatoshi    int64           `json:"msatoshi"`
	Description string          `json:"description"`
	Rhash       string          `json:"rhash"`
	Payreq      string          `json:"payreq"`
	ExpiresAt   int64           `json:"expires_at"`
	CreatedAt   int64           `json:"created_at"`
	Metadata    InvoiceMetadata `json:"metadata"`
	Status      string          `json:"status"`
}

type InvoiceMetadata struct {
	MsatoshisPerByte    int64     `json:"msatoshis_per_byte"`
	Sha256MessageDigest string    `json:"sha256_message_digest"`
	UUID                uuid.UUID `json:"uuid"`
}
