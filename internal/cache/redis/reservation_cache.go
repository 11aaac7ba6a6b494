package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

const (
	// Ключ холдов по товару: hash reservation_id -> "qty:expires_at_ms".
	productKeyPattern = "inv:%s"
	// Индекс холда: hash product_id -> qty, TTL ключа = TTL холда.
	reservationKeyPattern = "resv:%s"

	defaultOpTimeout = 2 * time.Second
)

// reserveScript — атомарный check-and-reserve по ключу товара: чистит истёкшие
// холды, суммирует живые и ставит новый холд, только если ceiling позволяет.
// Один round-trip, поэтому два конкурентных вызова за последнюю единицу
// не могут оба вернуть 1.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[5])
local reserved = 0
local fields = redis.call('HGETALL', KEYS[1])
for i = 1, #fields, 2 do
    local field = fields[i]
    local sep = string.find(fields[i+1], ':')
    local qty = tonumber(string.sub(fields[i+1], 1, sep - 1))
    local exp = tonumber(string.sub(fields[i+1], sep + 1))
    if exp <= now then
        redis.call('HDEL', KEYS[1], field)
    elseif field ~= ARGV[1] then
        reserved = reserved + qty
    end
end
local want = tonumber(ARGV[2])
if tonumber(ARGV[3]) - reserved < want then
    return 0
end
local ttl = tonumber(ARGV[4])
redis.call('HSET', KEYS[1], ARGV[1], want .. ':' .. (now + ttl))
redis.call('PEXPIRE', KEYS[1], ttl, 'GT')
redis.call('HSET', KEYS[2], ARGV[6], want)
redis.call('PEXPIRE', KEYS[2], ttl)
return 1
`)

// totalScript суммирует живые холды по товару, попутно удаляя истёкшие.
var totalScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local reserved = 0
local fields = redis.call('HGETALL', KEYS[1])
for i = 1, #fields, 2 do
    local sep = string.find(fields[i+1], ':')
    local qty = tonumber(string.sub(fields[i+1], 1, sep - 1))
    local exp = tonumber(string.sub(fields[i+1], sep + 1))
    if exp <= now then
        redis.call('HDEL', KEYS[1], fields[i])
    else
        reserved = reserved + qty
    end
end
return reserved
`)

// ReservationCache — Redis-реализация кэша холдов. Истёкшие записи исчезают
// сами: это и есть backstop для брошенных checkout.
type ReservationCache struct {
	client *redis.Client
}

// New подключает go-redis клиент по адресу.
func New(addr string) *ReservationCache {
	return &ReservationCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewWithClient оборачивает готовый клиент (используется в тестах с miniredis и т.п.).
func NewWithClient(client *redis.Client) *ReservationCache {
	return &ReservationCache{client: client}
}

// Ping проверяет доступность Redis.
func (c *ReservationCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (c *ReservationCache) Close() error {
	return c.client.Close()
}

func (c *ReservationCache) Reserve(ctx context.Context, productID, reservationID string, qty, stockCeiling int32, ttl time.Duration) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrItemQtyInvalid
	}

	now := time.Now().UnixMilli()
	res, err := reserveScript.Run(ctx, c.client,
		[]string{productKey(productID), reservationKey(reservationID)},
		reservationID, qty, stockCeiling, ttl.Milliseconds(), now, productID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve script: %w", err)
	}
	return res == 1, nil
}

func (c *ReservationCache) Items(ctx context.Context, reservationID string) ([]domain.ReservationItem, error) {
	raw, err := c.client.HGetAll(ctx, reservationKey(reservationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read reservation index: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrReservationNotFound
	}

	items := make([]domain.ReservationItem, 0, len(raw))
	for productID, qtyRaw := range raw {
		qty, err := strconv.ParseInt(qtyRaw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse reservation qty for %s: %w", productID, err)
		}
		items = append(items, domain.ReservationItem{ProductID: productID, Qty: int32(qty)})
	}
	return items, nil
}

// Release снимает холд в два шага: читает индекс, затем пайплайном удаляет
// поле холда из каждого ключа товара и сам индекс. Скрипт здесь не годится:
// ключи inv:* известны только из содержимого индекса, а в Redis Cluster
// скрипт может трогать лишь ключи, объявленные в KEYS. Потеря атомарности
// безопасна: недоудалённые поля истекут по TTL.
func (c *ReservationCache) Release(ctx context.Context, reservationID string) error {
	indexKey := reservationKey(reservationID)
	raw, err := c.client.HGetAll(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("read reservation index: %w", err)
	}

	pipe := c.client.Pipeline()
	for productID := range raw {
		pipe.HDel(ctx, productKey(productID), reservationID)
	}
	pipe.Del(ctx, indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

func (c *ReservationCache) TotalReserved(ctx context.Context, productID string) (int32, error) {
	total, err := totalScript.Run(ctx, c.client,
		[]string{productKey(productID)},
		time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("total script: %w", err)
	}
	return int32(total), nil
}

func productKey(productID string) string {
	return fmt.Sprintf(productKeyPattern, productID)
}

func reservationKey(reservationID string) string {
	return fmt.Sprintf(reservationKeyPattern, reservationID)
}

var _ domain.ReservationCache = (*ReservationCache)(nil)
