package models

import "time"

// OrderStatus is the normalized lifecycle state of a scraped order
type OrderStatus string

const (
	OrderOrdered   OrderStatus = "Ordered"
	OrderShipped   OrderStatus = "Shipped"
	OrderDelivered OrderStatus = "Delivered"
	OrderCancelled OrderStatus = "Cancelled"
	OrderReturned  OrderStatus = "Returned"
	OrderFailed    OrderStatus = "Failed"
)

// PlatformFlipkart tags orders scraped from the Flipkart storefront
const PlatformFlipkart = "FLP"

// ScrapedOrder is one order record extracted from an order detail page
type ScrapedOrder struct {
	OrderID       string      `json:"order_id"`
	ProductName   string      `json:"product_name"`
	Price         string      `json:"price"`
	Status        OrderStatus `json:"status"`
	OrderDate     string      `json:"order_date"`
	DeliveredDate string      `json:"delivered_date"`
	TrackingID    string      `json:"tracking_id"`
	ImageURL      string      `json:"image_url"`
	Platform      string      `json:"platform"`
}

// Order is a stored order row
type Order struct {
	ID        int64  `json:"id"`
	AccountID string `json:"account_id"`
	ScrapedOrder
	Quantity    int       `json:"quantity"`
	DeliveryOTP string    `json:"delivery_otp"`
	UpdatedAt   time.Time `json:"updated_at"`
}
