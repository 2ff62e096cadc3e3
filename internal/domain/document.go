package domain

// PurchaseOrder is the buyer's order document, written once at trade creation.
type PurchaseOrder struct {
	Description string   `json:"description"`
	Quantity    uint64   `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	TotalPrice  int64    `json:"total_price"`
	DocumentRef string   `json:"document_ref"`
	CreatedBy   Identity `json:"created_by"`
	CreatedAt   uint64   `json:"created_at"`
}

// CustomerInvoice is the seller's invoice, written once at fulfillment.
type CustomerInvoice struct {
	Description string   `json:"description"`
	Quantity    uint64   `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	TotalPrice  int64    `json:"total_price"`
	DocumentRef string   `json:"document_ref"`
	CreatedBy   Identity `json:"created_by"`
	CreatedAt   uint64   `json:"created_at"`
}

// WarehouseReceipt is the delivery evidence, written once at fulfillment.
// Its TotalPrice is supplied independently of the invoice.
type WarehouseReceipt struct {
	Description       string   `json:"description"`
	Quantity          uint64   `json:"quantity"`
	UnitPrice         int64    `json:"unit_price"`
	TotalPrice        int64    `json:"total_price"`
	DocumentRef       string   `json:"document_ref"`
	WarehouseLocation string   `json:"warehouse_location"`
	CreatedBy         Identity `json:"created_by"`
	CreatedAt         uint64   `json:"created_at"`
}

// VLEIDocuments holds the legal-entity identifiers of both parties and the
// validation flags set by the trusted validator. Flags only go false→true.
type VLEIDocuments struct {
	BuyerLEI        string `json:"buyer_lei"`
	BuyerLEIRef     string `json:"buyer_lei_ref"`
	BuyerValidated  bool   `json:"buyer_validated"`
	SellerLEI       string `json:"seller_lei"`
	SellerLEIRef    string `json:"seller_lei_ref"`
	SellerValidated bool   `json:"seller_validated"`
	ValidatedAt     uint64 `json:"validated_at"`
}
