package repo

// CART / STOCK
const getCartLinesSQL = `
SELECT c.product_id, c.quantity, p.retail_price, p.discount_percent, p.stock_qty
FROM cart_items c
JOIN products p ON p.id = c.product_id
WHERE c.user_id = $1
ORDER BY c.product_id
FOR UPDATE OF p`

const clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

const addToCartSQL = `
INSERT INTO cart_items (user_id, product_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

const getProductSQL = `
SELECT id, name, retail_price, discount_percent, stock_qty, sold_qty
FROM products WHERE id = $1`

const deductStockSQL = `
UPDATE products SET stock_qty = stock_qty - $2, updated_at = now()
WHERE id = $1 AND stock_qty >= $2`

// releaseStock flips the flag first so a second release finds nothing to credit.
const clearStockDeductedSQL = `
UPDATE orders SET stock_deducted = false, updated_at = now()
WHERE id = $1 AND stock_deducted`

const creditOrderStockSQL = `
UPDATE products p
SET stock_qty = p.stock_qty + oi.quantity, updated_at = now()
FROM order_items oi
WHERE oi.order_id = $1 AND oi.product_id = p.id`

const incrementSoldQtySQL = `
UPDATE products p
SET sold_qty = p.sold_qty + oi.quantity, updated_at = now()
FROM order_items oi
WHERE oi.order_id = $1 AND oi.product_id = p.id`

// ORDERS
const insertOrderSQL = `
INSERT INTO orders (
  user_id, order_date, total_amount, payment_method, payment_status,
  order_status, shipping_address, note, stock_deducted
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at, updated_at`

const insertOrderItemSQL = `
INSERT INTO order_items (order_id, product_id, quantity, unit_price, total)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

const getOrderSQL = `
SELECT id, user_id, order_date, total_amount, payment_method, payment_status,
       order_status, shipping_address, note, stock_deducted, created_at, updated_at
FROM orders WHERE id = $1`

const getOrderItemsSQL = `
SELECT id, order_id, product_id, quantity, unit_price, total
FROM order_items WHERE order_id = $1 ORDER BY id`

const markOrderPaidSQL = `
UPDATE orders SET payment_status = $2, order_status = $3, updated_at = now()
WHERE id = $1 AND order_status = $4`

const cancelOrderSQL = `
UPDATE orders
SET order_status = $2,
    payment_status = COALESCE(NULLIF($3, ''), payment_status),
    note = CASE WHEN note = '' THEN $4 ELSE note || E'\n' || $4 END,
    updated_at = now()
WHERE id = $1 AND order_status = $5`

// PAYMENTS
const getPaymentByKeySQL = `
SELECT id, order_id, amount, method, status, transaction_id, idempotency_key, payment_date
FROM payments WHERE idempotency_key = $1`

const insertPaymentSQL = `
INSERT INTO payments (order_id, amount, method, status, transaction_id, idempotency_key, payment_date)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT DO NOTHING
RETURNING id`

// OUTBOX
const insertOutboxSQL = `
INSERT INTO outbox_messages (event_id, event_type_name, payload, occurred_on)
VALUES ($1, $2, ($3)::jsonb, $4)
RETURNING id`

// claimBatchSQL leases unprocessed rows to one relay; rows leased by another
// relay are skipped until claimed_until passes.
const claimBatchSQL = `
WITH picked AS (
	SELECT id
	FROM outbox_messages
	WHERE processed_on IS NULL
		AND error_count < $4
		AND (claimed_until IS NULL OR claimed_until < now())
	ORDER BY occurred_on, id
	FOR UPDATE SKIP LOCKED
	LIMIT $3
)
UPDATE outbox_messages AS o
SET claimed_by = $1, claimed_until = now() + $2::interval
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.event_id, o.event_type_name, o.payload, o.occurred_on, o.processed_on,
          o.error, o.error_count, o.claimed_by, o.claimed_until`

const markOutboxProcessedSQL = `
UPDATE outbox_messages
SET processed_on = now(), claimed_by = '', claimed_until = NULL
WHERE id = $1 AND processed_on IS NULL`

const markOutboxFailedSQL = `
UPDATE outbox_messages
SET error = $2, error_count = error_count + 1, claimed_by = '', claimed_until = NULL
WHERE id = $1 AND processed_on IS NULL
RETURNING error_count`

const listDeadLettersSQL = `
SELECT id, event_id, event_type_name, payload, occurred_on, processed_on,
       error, error_count, claimed_by, claimed_until
FROM outbox_messages
WHERE processed_on IS NULL AND error_count >= $1
ORDER BY occurred_on, id
LIMIT $2`

const countDeadLettersSQL = `
SELECT count(*) FROM outbox_messages
WHERE processed_on IS NULL AND error_count >= $1`

const requeueOutboxSQL = `
UPDATE outbox_messages
SET error_count = 0, error = '', claimed_by = '', claimed_until = NULL
WHERE id = $1 AND processed_on IS NULL`

// LEDGER
const isProcessedSQL = `
SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1 AND consumer_name = $2)`

const markProcessedSQL = `
INSERT INTO processed_messages (message_id, consumer_name)
VALUES ($1, $2)
ON CONFLICT (message_id, consumer_name) DO NOTHING`
