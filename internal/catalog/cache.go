package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DistributorSource — источник списка поставщиков (в проде *Client).
type DistributorSource interface {
	Distributors(ctx context.Context) ([]Distributor, error)
}

// DistributorCache — TTL-кэш списка поставщиков с дедупликацией запросов.
// Инвариант: на один ключ в любой момент не больше одного запроса к апстриму;
// конкурентные промахи ждут общий результат через singleflight.
type DistributorCache struct {
	source DistributorSource
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	value   []Distributor
	expires time.Time
}

func NewDistributorCache(source DistributorSource, ttl time.Duration) *DistributorCache {
	return &DistributorCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get возвращает поставщиков из кэша, пока он свежий. На промахе ровно один
// вызывающий идёт к апстриму, остальные ждут его результат. Неудачный запрос
// не трогает ранее закэшированные данные, ожидавшие получают пустой список.
func (c *DistributorCache) Get(ctx context.Context) []Distributor {
	c.mu.Lock()
	if c.now().Before(c.expires) {
		v := c.value
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("distributors", func() (interface{}, error) {
		list, err := c.source.Distributors(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.value = list
		c.expires = c.now().Add(c.ttl)
		c.mu.Unlock()
		return list, nil
	})
	if err != nil {
		log.Error().Err(err).Msg("catalog: failed to refresh distributors")
		return []Distributor{}
	}
	return v.([]Distributor)
}

// Map возвращает поставщиков, индексированных по id.
func (c *DistributorCache) Map(ctx context.Context) map[string]Distributor {
	list := c.Get(ctx)
	m := make(map[string]Distributor, len(list))
	for _, d := range list {
		if d.ID != "" {
			m[d.ID] = d
		}
	}
	return m
}
