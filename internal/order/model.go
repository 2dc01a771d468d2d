package order

import (
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusReserved   Status = "reserved"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

func (s Status) String() string {
	return string(s)
}

// KnownStatuses — все статусы в порядке показа пользователю.
var KnownStatuses = []Status{StatusNew, StatusInProgress, StatusReserved, StatusCompleted, StatusRejected}

var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus нормализует строку статуса. Любая нераспознанная строка —
// ErrUnknownStatus, вне зависимости от роли вызывающего.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", ErrUnknownStatus
}

// LineItem — одна позиция заказа вместе с метаданными поставщика и меткой
// свежести снапшота цены/остатка, по которому позиция была добавлена.
type LineItem struct {
	Number         string          `json:"number"`
	Title          string          `json:"title"`
	Count          int             `json:"count"`
	Price          decimal.Decimal `json:"price"`
	Brand          string          `json:"brand"`
	DistributorID  string          `json:"distributorId"`
	SupplierCode   string          `json:"supplierCode"`
	LastUpdateTime string          `json:"lastUpdateTime"`
}

type Order struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         string     `json:"telegram_id"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Description     string     `json:"description,omitempty"`
	Items           []LineItem `json:"items"`
	Status          Status     `json:"status"`
	StatusChangedAt time.Time  `json:"status_datetime"`
	CreatedAt       time.Time  `json:"datetime"`
}

// Total — сумма заказа по позициям.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Count))))
	}
	return total
}
