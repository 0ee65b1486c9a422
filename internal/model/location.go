package model

import (
	"fmt"
	"time"

	"github.com/hitoshi/emerald/internal/spatial"
)

// Location はユーザーが登録した単一地点を表す。
// ユーザー削除時にCASCADE削除される。
type Location struct {
	ID         string
	UserID     string
	Name       string
	Point      spatial.GeoPoint
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// GeoPoint はspatial.Locatedを実装する。
func (l *Location) GeoPoint() spatial.GeoPoint {
	return l.Point
}

// Longitude は経度を返す。
func (l *Location) Longitude() float64 {
	return l.Point.Longitude
}

// Latitude は緯度を返す。
func (l *Location) Latitude() float64 {
	return l.Point.Latitude
}

// DisplayName は"(経度, 緯度)"形式の表示名を返す。
func (l *Location) DisplayName() string {
	return fmt.Sprintf("(%v, %v)", l.Point.Longitude, l.Point.Latitude)
}

// GoogleMapsURL はGoogleマップで地点を開くURLを返す。
func (l *Location) GoogleMapsURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", l.Point.Latitude, l.Point.Longitude)
}

// Member はユーザーと現在地（最新の登録地点）の組。
// 現在地が未登録のユーザーはLocationがnilになる。
type Member struct {
	User     *User
	Location *Location
}

// GeoPoint はspatial.Locatedを実装する。
// Locationがnilの場合はゼロ値を返すため、呼び出し側で除外すること。
func (m Member) GeoPoint() spatial.GeoPoint {
	if m.Location == nil {
		return spatial.GeoPoint{}
	}
	return m.Location.Point
}
