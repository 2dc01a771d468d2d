// Package catalog — клиент внешнего каталога запчастей (ABCP-совместимый API):
// поиск брендов по артикулу, поиск предложений по бренду и списки поставщиков.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Brand struct {
	Brand        string `json:"brand"`
	Number       string `json:"number"`
	NumberFix    string `json:"numberFix"`
	Description  string `json:"description"`
}

// Article — предложение каталога после преобразования остатка. Значения
// переживают сериализацию в состояние сессии, поэтому все поля несут
// JSON-теги.
type Article struct {
	Brand          string          `json:"brand"`
	Number         string          `json:"number"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	IsAnalog       bool            `json:"isAnalog"`
	DistributorID  string          `json:"distributorId"`
	SupplierCode   string          `json:"supplierCode"`
	LastUpdateTime string          `json:"lastUpdateTime"`
	DeliveryLabel  string          `json:"deliveryLabel"`
	Availability   Availability    `json:"availability"`
}

type Distributor struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Contractor      string `json:"contractor"`
	UpdateTime      string `json:"updateTime"`
	IsEnabled       bool   `json:"isEnabled"`
	PositionsNumber int    `json:"positionsNumber"`
}

// Gateway — то, что нужно сценам от каталога. Ошибки апстрима сцены
// не получают: плохой ответ всегда вырождается в пустой список.
type Gateway interface {
	SearchBrands(ctx context.Context, number string) ([]Brand, error)
	SearchArticles(ctx context.Context, number, brand string) ([]Article, error)
}

type Client struct {
	httpClient *http.Client
	host       string
	user       string
	pass       string
}

func NewClient(host, user, pass string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		host:       host,
		user:       user,
		pass:       pass,
	}
}

func (c *Client) endpoint(path string, params url.Values) string {
	params.Set("userlogin", c.user)
	params.Set("userpsw", c.pass)
	base := c.host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s%s?%s", base, path, params.Encode())
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read response: %w", err)
	}
	return body, nil
}

// SearchBrands возвращает бренды, у которых находится указанный артикул.
// API отвечает объектом с произвольными ключами; порядок стабилизируется
// сортировкой по имени бренда.
func (c *Client) SearchBrands(ctx context.Context, number string) ([]Brand, error) {
	params := url.Values{}
	params.Set("number", number)
	body, err := c.get(ctx, c.endpoint("/search/brands", params))
	if err != nil {
		return nil, err
	}

	var byKey map[string]Brand
	if err := json.Unmarshal(body, &byKey); err != nil {
		// Пустой результат API отдаёт как 0 или [].
		return nil, nil
	}

	brands := make([]Brand, 0, len(byKey))
	for _, b := range byKey {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool {
		if brands[i].Brand != brands[j].Brand {
			return brands[i].Brand < brands[j].Brand
		}
		return brands[i].Number < brands[j].Number
	})
	return brands, nil
}

// сырой вид предложения до преобразования остатка
type rawArticle struct {
	Brand                            string          `json:"brand"`
	Number                           string          `json:"number"`
	Description                      string          `json:"description"`
	Price                            decimal.Decimal `json:"price"`
	Availability                     json.RawMessage `json:"availability"`
	IsAnalog                         json.RawMessage `json:"isAnalog"`
	DistributorID                    json.RawMessage `json:"distributorId"`
	SupplierCode                     string          `json:"supplierCode"`
	LastUpdateTime                   string          `json:"lastUpdateTime"`
	DeliveryProbability              float64         `json:"deliveryProbability"`
	DescriptionOfDeliveryProbability string          `json:"descriptionOfDeliveryProbability"`
}

// SearchArticles возвращает предложения по паре артикул+бренд. Остаток
// преобразуется здесь, ровно один раз: дальше по коду сырые значения не живут.
func (c *Client) SearchArticles(ctx context.Context, number, brand string) ([]Article, error) {
	params := url.Values{}
	params.Set("number", number)
	params.Set("brand", brand)
	params.Set("useOnlineStocks", "1")
	body, err := c.get(ctx, c.endpoint("/search/articles", params))
	if err != nil {
		return nil, err
	}

	var raw []rawArticle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil
	}

	articles := make([]Article, 0, len(raw))
	for _, r := range raw {
		delivery := r.DescriptionOfDeliveryProbability
		if r.DeliveryProbability == 0 {
			delivery = "На складе"
		}
		articles = append(articles, Article{
			Brand:          r.Brand,
			Number:         r.Number,
			Description:    r.Description,
			Price:          r.Price,
			IsAnalog:       rawBool(r.IsAnalog),
			DistributorID:  rawString(r.DistributorID),
			SupplierCode:   r.SupplierCode,
			LastUpdateTime: r.LastUpdateTime,
			DeliveryLabel:  delivery,
			Availability:   TransformAvailability(r.Availability),
		})
	}
	return articles, nil
}

// Distributors возвращает список поставщиков. Вызов дорогой, поэтому в
// рабочем контуре всегда прикрыт DistributorCache.
func (c *Client) Distributors(ctx context.Context) ([]Distributor, error) {
	body, err := c.get(ctx, c.endpoint("/cp/distributors", url.Values{}))
	if err != nil {
		return nil, err
	}

	var raw []struct {
		ID              json.RawMessage `json:"id"`
		Name            string          `json:"name"`
		Contractor      string          `json:"contractor"`
		UpdateTime      string          `json:"updateTime"`
		IsEnabled       json.RawMessage `json:"isEnabled"`
		PositionsNumber int             `json:"positionsNumber"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil
	}

	distributors := make([]Distributor, 0, len(raw))
	for _, r := range raw {
		distributors = append(distributors, Distributor{
			ID:              rawString(r.ID),
			Name:            r.Name,
			Contractor:      r.Contractor,
			UpdateTime:      r.UpdateTime,
			IsEnabled:       rawBool(r.IsEnabled),
			PositionsNumber: r.PositionsNumber,
		})
	}
	return distributors, nil
}

// API отдаёт id и флаги то числом, то строкой.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}
