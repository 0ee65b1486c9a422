// Package spatial は経緯度座標上の近接検索を提供する。
//
// 距離（メートル）を観測点の緯度における経度方向の角度に換算し、
// その角度を半径とする平面近似で点の包含判定を行う。
// 大圏距離は計算しない。
package spatial

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MetersPerDegreeAtEquator は赤道上における経度1度あたりのメートル数。
	MetersPerDegreeAtEquator = 111319.5

	// MetersPerMile は1マイルあたりのメートル数。
	MetersPerMile = 1609.344

	// minCosLatitude はcos(緯度)の下限。これ以下は極とみなして換算を拒否する。
	minCosLatitude = 1e-9
)

var (
	// ErrInvalidPoint は経度・緯度が有効範囲外であることを示す。
	ErrInvalidPoint = errors.New("spatial: coordinate out of range")

	// ErrNegativeDistance は負の距離が指定されたことを示す。
	ErrNegativeDistance = errors.New("spatial: negative distance")

	// ErrDegenerateLatitude は極付近の緯度で経度換算が発散することを示す。
	ErrDegenerateLatitude = errors.New("spatial: degenerate latitude")
)

// DegenerateInputError は極付近の緯度で換算できなかった入力を保持する。
type DegenerateInputError struct {
	Latitude float64
}

// Error はerrorインターフェースを実装する。
func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("spatial: cannot convert distance to degrees at latitude %g", e.Latitude)
}

// Unwrap はErrDegenerateLatitudeを返す。
func (e *DegenerateInputError) Unwrap() error {
	return ErrDegenerateLatitude
}

// GeoPoint は経度・緯度の組（度）を表す。
// EPSG:4326 v1.1 の軸順に従い、経度が先に来る。
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Validate は経度が[-180, 180]、緯度が[-90, 90]の範囲内であることを検証する。
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %g", ErrInvalidPoint, p.Longitude)
	}
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %g", ErrInvalidPoint, p.Latitude)
	}
	return nil
}

// String は"(lon, lat)"形式の文字列を返す。
func (p GeoPoint) String() string {
	return fmt.Sprintf("(%g, %g)", p.Longitude, p.Latitude)
}

// Located は座標を持つエンティティ。
type Located interface {
	GeoPoint() GeoPoint
}

// Box は経緯度の矩形範囲。
type Box struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Contains は点が矩形（境界を含む）の内側にあるかを判定する。
func (b Box) Contains(p GeoPoint) bool {
	return p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon &&
		p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat
}

// MilesToMeters はマイルをメートルに換算する。
func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

// DistanceToDegrees はメートル単位の距離を、指定緯度における経度方向の角度（度）に換算する。
//
//	degrees = distance / (111319.5 * cos(latitude_radians))
func DistanceToDegrees(distanceMeters, latitude float64) (float64, error) {
	if distanceMeters < 0 || math.IsNaN(distanceMeters) {
		return 0, fmt.Errorf("%w: %g", ErrNegativeDistance, distanceMeters)
	}
	if math.IsNaN(latitude) || latitude < -90 || latitude > 90 {
		return 0, fmt.Errorf("%w: latitude %g", ErrInvalidPoint, latitude)
	}

	latRadians := latitude * (math.Pi / 180)
	cos := math.Cos(latRadians)
	if cos <= minCosLatitude {
		return 0, &DegenerateInputError{Latitude: latitude}
	}

	return distanceMeters / (MetersPerDegreeAtEquator * cos), nil
}

// RadiusToDegrees はマイル単位の検索半径を、起点の緯度における角度半径に換算する。
func RadiusToDegrees(origin GeoPoint, radiusMiles float64) (float64, error) {
	if err := origin.Validate(); err != nil {
		return 0, err
	}
	return DistanceToDegrees(MilesToMeters(radiusMiles), origin.Latitude)
}

// BoundingBox は起点を中心とし、半辺がdegreesの正方形を返す。
// 日付変更線をまたぐ折り返しは考慮しない。
func BoundingBox(origin GeoPoint, degrees float64) Box {
	return Box{
		MinLon: origin.Longitude - degrees,
		MinLat: origin.Latitude - degrees,
		MaxLon: origin.Longitude + degrees,
		MaxLat: origin.Latitude + degrees,
	}
}

// PlanarDistance は2点間の平面距離（度）を返す。
func PlanarDistance(a, b GeoPoint) float64 {
	return math.Hypot(a.Longitude-b.Longitude, a.Latitude-b.Latitude)
}

// FindWithinRadius は起点から半径radiusMilesの角度半径内にあるエンティティを返す。
// 平面近似による判定で、結果の順序は入力順に従う。
// エンティティが空、または半径が0以下の場合は空スライスを返す。
func FindWithinRadius[T Located](origin GeoPoint, radiusMiles float64, entities []T) ([]T, error) {
	result := make([]T, 0)
	if len(entities) == 0 || radiusMiles <= 0 {
		return result, nil
	}

	degrees, err := RadiusToDegrees(origin, radiusMiles)
	if err != nil {
		return nil, err
	}

	for _, e := range entities {
		if PlanarDistance(origin, e.GeoPoint()) <= degrees {
			result = append(result, e)
		}
	}
	return result, nil
}
