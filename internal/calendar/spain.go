package calendar

import "time"

// SpainNationalHolidays provides the holidays common to all of Spain:
// nine fixed dates plus Good Friday. Regional and substitute holidays are
// intentionally not modeled.
type SpainNationalHolidays struct{}

func (SpainNationalHolidays) Description() string { return "ES national holidays" }

func (SpainNationalHolidays) HolidaysForYear(year int) map[Date]struct{} {
	hs := map[Date]struct{}{
		{year, time.January, 1}:   {}, // Año Nuevo
		{year, time.January, 6}:   {}, // Epifanía del Señor
		{year, time.May, 1}:       {}, // Fiesta del Trabajo
		{year, time.August, 15}:   {}, // Asunción de la Virgen
		{year, time.October, 12}:  {}, // Fiesta Nacional de España
		{year, time.November, 1}:  {}, // Todos los Santos
		{year, time.December, 6}:  {}, // Día de la Constitución
		{year, time.December, 8}:  {}, // Inmaculada Concepción
		{year, time.December, 25}: {}, // Navidad
	}
	easter := easterSunday(year)
	goodFriday := easter.AddDate(0, 0, -2)
	hs[DateOf(goodFriday)] = struct{}{} // Viernes Santo
	return hs
}

// easterSunday computes Gregorian Easter via the anonymous Gregorian
// computus (Meeus/Jones/Butcher).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
