package report

import "strings"

// Координаты центра области для неизвестных населенных пунктов.
const (
	fallbackLat = 57.0
	fallbackLng = 65.5
)

type locality struct {
	Name string
	Lat  float64
	Lng  float64
}

// Координаты основных населенных пунктов Тюменской области.
var localities = []locality{
	{"Тюмень", 57.1522, 65.5272},
	{"Тобольск", 58.1981, 68.2597},
	{"Ишим", 56.1125, 69.4903},
	{"Ялуторовск", 56.6517, 66.3128},
	{"Заводоуковск", 56.5014, 66.5514},
	{"Голышманово", 56.3989, 68.3697},
	{"Вагай", 57.9353, 69.0278},
	{"Упорово", 56.3189, 66.2708},
	{"Омутинское", 56.4783, 67.6556},
	{"Армизонское", 56.0903, 67.7014},
	{"Бердюжье", 55.8069, 68.5397},
	{"Абатское", 56.2797, 70.4500},
	{"Викулово", 56.8167, 70.6167},
	{"Сорокино", 56.1289, 67.3944},
	{"Юргинское", 56.8250, 67.3958},
	{"Нижняя Тавда", 57.6733, 66.1744},
	{"Ярково", 57.4103, 67.0664},
	{"Казанское", 55.6417, 69.2333},
	{"Исетское", 56.4856, 65.3278},
	{"Сладково", 55.5278, 70.3389},
}

var localityIndex = buildLocalityIndex()

func buildLocalityIndex() map[string]locality {
	index := make(map[string]locality, len(localities))
	for _, l := range localities {
		index[l.Name] = l
	}
	return index
}

// Coordinates возвращает координаты населенного пункта. Сначала точное
// совпадение, затем частичное в обе стороны, иначе центр области.
func Coordinates(location string) (float64, float64) {
	if location == "" {
		return fallbackLat, fallbackLng
	}
	if l, ok := localityIndex[location]; ok {
		return l.Lat, l.Lng
	}

	lower := strings.ToLower(location)
	for _, l := range localities {
		name := strings.ToLower(l.Name)
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return l.Lat, l.Lng
		}
	}

	return fallbackLat, fallbackLng
}
