package main

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/menu"
)

// rawItem is a menu item as found in a dump line, before validation.
type rawItem struct {
	id           string
	restaurantID string
	name         string
	price        string
	isVeg        bool
}

// parseLine decodes one JSONL record. A record is either a single item
// carrying its restaurantId, or a category with an items array whose
// entries inherit the category's restaurantId.
func parseLine(line []byte) ([]rawItem, error) {
	var (
		single     rawItem
		restaurant string
		nested     []rawItem
		hasItems   bool
	)
	d := jx.DecodeBytes(line)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			hasItems = true
			return d.Arr(func(d *jx.Decoder) error {
				var it rawItem
				if err := decodeItemFields(d, &it); err != nil {
					return err
				}
				nested = append(nested, it)
				return nil
			})
		case "restaurantId", "restaurant":
			v, err := decodeRef(d)
			restaurant = v
			return err
		default:
			return decodeItemField(d, key, &single)
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}

	if !hasItems {
		single.restaurantID = restaurant
		return []rawItem{single}, nil
	}
	for i := range nested {
		if nested[i].restaurantID == "" {
			nested[i].restaurantID = restaurant
		}
	}
	return nested, nil
}

func decodeItemFields(d *jx.Decoder, it *rawItem) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key == "restaurantId" || key == "restaurant" {
			v, err := decodeRef(d)
			it.restaurantID = v
			return err
		}
		return decodeItemField(d, key, it)
	})
}

func decodeItemField(d *jx.Decoder, key string, it *rawItem) error {
	var err error
	switch key {
	case "id", "_id":
		it.id, err = decodeScalar(d)
	case "name":
		it.name, err = decodeScalar(d)
	case "price":
		it.price, err = decodeScalar(d)
	case "isVeg":
		if d.Next() != jx.Bool {
			return d.Skip()
		}
		it.isVeg, err = d.Bool()
	default:
		err = d.Skip()
	}
	return err
}

// decodeRef reads an id given as a string, a number or an object with an
// _id or id field.
func decodeRef(d *jx.Decoder) (string, error) {
	if d.Next() != jx.Object {
		return decodeScalar(d)
	}
	var id string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "_id" && key != "id" {
			return d.Skip()
		}
		var err error
		id, err = decodeScalar(d)
		return err
	})
	return id, err
}

func decodeScalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		return strings.TrimSpace(s), err
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", d.Skip()
	}
}

// item validates a raw item.
func (r rawItem) item() (menu.Item, error) {
	switch {
	case r.id == "":
		return menu.Item{}, errors.New("missing id")
	case r.restaurantID == "":
		return menu.Item{}, errors.Errorf("item %s: missing restaurant", r.id)
	case r.name == "":
		return menu.Item{}, errors.Errorf("item %s: missing name", r.id)
	}
	price, err := decimal.NewFromString(r.price)
	if err != nil {
		return menu.Item{}, errors.Wrapf(err, "item %s: parse price %q", r.id, r.price)
	}
	if price.IsNegative() {
		return menu.Item{}, errors.Errorf("item %s: negative price", r.id)
	}
	return menu.Item{
		ID:           r.id,
		RestaurantID: r.restaurantID,
		Name:         r.name,
		Price:        price,
		IsVeg:        r.isVeg,
	}, nil
}
