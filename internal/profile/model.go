package profile

import "time"

// Profile — анкета клиента. TelegramID уникален: на один аккаунт мессенджера
// ровно одна анкета.
type Profile struct {
	ID         int64     `json:"id"`
	TelegramID string    `json:"telegram_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address,omitempty"`
	OrgINN     string    `json:"org_inn,omitempty"`
	OrgTitle   string    `json:"org_title,omitempty"`
	OrgOGRN    string    `json:"org_ogrn,omitempty"`
	OrgAddress string    `json:"org_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasOrg — заполнены ли реквизиты организации.
func (p *Profile) HasOrg() bool {
	return p.OrgINN != "" || p.OrgTitle != "" || p.OrgOGRN != "" || p.OrgAddress != ""
}
