package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// decodePlaceOrder reads {"items":[{"product_id":"1","quantity":2}]}.
// Numeric product ids are accepted and kept in their textual form.
func decodePlaceOrder(d *jx.Decoder) ([]order.Item, error) {
	var items []order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeItem(d)
			if err != nil {
				return errors.Wrapf(err, "item %d", len(items))
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var item order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			id, err := decodeID(d)
			item.ProductID = id
			return err
		case "quantity":
			q, err := d.Int()
			item.Quantity = q
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return item, err
	}
	if item.ProductID == "" {
		return item, errors.New("product_id required")
	}
	return item, nil
}

func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		if !n.IsInt() {
			return "", errors.Errorf("non-integer id %s", n)
		}
		return n.String(), nil
	default:
		return "", errors.Errorf("unexpected %s id", d.Next())
	}
}

// decodeProduct reads the name, description, price and quantity of a
// catalog write. Prices may be JSON numbers or strings.
func decodeProduct(d *jx.Decoder) (*product.Product, error) {
	var p product.Product
	var hasPrice, hasQuantity bool
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
			hasPrice = true
		case "quantity":
			p.Quantity, err = d.Int()
			hasQuantity = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !hasPrice {
		return nil, errors.New("price required")
	}
	if !hasQuantity {
		return nil, errors.New("quantity required")
	}
	return &p, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s amount", d.Next())
	}
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(money.Places)))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("total_discount")
	encodeMoney(e, o.Discount)
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, l.UnitPrice)
		e.FieldStart("discount")
		encodeMoney(e, l.Discount)
		e.FieldStart("total_price")
		encodeMoney(e, l.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.ObjEnd()
}

// writeData writes the {"success": true, "data": ...} envelope.
func writeData(w http.ResponseWriter, status int, data func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("data")
	data(e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
