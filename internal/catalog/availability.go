package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Поставщики кодируют «под заказ» специальным отрицательным значением.
const specialOrderRaw = -10

const SpecialOrderLabel = "Под заказ"

// Availability — преобразованное значение остатка. Сырые значения каталога
// не покидают границу клиента: сцены видят только Availability.
type Availability struct {
	// Display — значение для показа пользователю.
	Display string `json:"display"`
	// Qty заполнен, когда остаток численно известен; Numeric=false означает
	// «под заказ» либо маркер неточного остатка, количественная проверка
	// для таких значений пропускается.
	Qty     int  `json:"qty"`
	Numeric bool `json:"numeric"`
}

// TransformAvailability приводит сырое значение остатка к отображаемому:
//   - -10 — «под заказ»;
//   - прочие отрицательные — строка из '+' длиной |value|;
//   - неотрицательные числа и числовые строки проходят как есть;
//   - нечисловые строки проходят без изменений.
func TransformAvailability(raw json.RawMessage) Availability {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return Availability{Display: "-"}
	}
	s = strings.Trim(s, `"`)

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Availability{Display: s}
	}

	// Маркер «под заказ» — ровно -10; дробные соседи остаются плюсами.
	if n == specialOrderRaw {
		return Availability{Display: SpecialOrderLabel}
	}
	qty := int(n)
	if n < 0 {
		return Availability{Display: strings.Repeat("+", -qty)}
	}
	return Availability{Display: strconv.Itoa(qty), Qty: qty, Numeric: true}
}

// AllowsQuantity проверяет запрошенное количество против остатка.
// Для нечисловых остатков проверка не выполняется.
func (a Availability) AllowsQuantity(qty int) bool {
	if !a.Numeric {
		return true
	}
	return qty <= a.Qty
}
