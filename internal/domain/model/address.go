package model

import (
	"regexp"
	"strings"
)

// 注文時点の配送先住所（注文にJSONでコピーされる）
type AddressSnapshot struct {
	//宛名
	Name string `json:"name"`

	//電話番号
	Phone string `json:"phone"`

	//"省 市 区" または "省/市/区"
	Region string `json:"region,omitempty"`

	Province string `json:"province"`
	City     string `json:"city"`
	District string `json:"district"`

	//番地など
	Detail string `json:"detail"`
}

var regionSep = regexp.MustCompile(`[\s/]+`)

// province/city/district が空ならregionから補完する
func (a AddressSnapshot) Normalize() AddressSnapshot {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Region = strings.TrimSpace(a.Region)
	a.Province = strings.TrimSpace(a.Province)
	a.City = strings.TrimSpace(a.City)
	a.District = strings.TrimSpace(a.District)
	a.Detail = strings.TrimSpace(a.Detail)

	if a.Province != "" && a.City != "" && a.District != "" {
		return a
	}

	var parts []string
	if a.Region != "" {
		for _, p := range regionSep.Split(a.Region, -1) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
	}
	pick := func(cur string, i int) string {
		if cur != "" {
			return cur
		}
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	a.Province = pick(a.Province, 0)
	a.City = pick(a.City, 1)
	a.District = pick(a.District, 2)
	return a
}

// 住所の欠けている項目名を返す（なければ空）
func (a AddressSnapshot) MissingField() string {
	switch {
	case a.Name == "":
		return "name"
	case len(a.Phone) < 6:
		return "phone"
	case a.Detail == "":
		return "detail"
	case a.Province == "" || a.City == "" || a.District == "":
		return "region"
	}
	return ""
}
