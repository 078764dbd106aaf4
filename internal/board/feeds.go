package board

// Feed names.
const (
	FeedProjects = "projects"
	FeedFlights  = "flights"
)

// Column is one displayed column and the header spellings accepted for it.
type Column struct {
	Label   string
	Aliases []string
	// Status marks the column whose value drives the row's status class.
	Status bool
}

// Feed is one upstream sheet shown on the board.
type Feed struct {
	Name    string
	URL     string
	Columns []Column
}

// Labels returns the display labels of f's columns.
func (f Feed) Labels() []string {
	out := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		out[i] = c.Label
	}
	return out
}

// ProjectsFeed describes the institutions/projects sheet.
func ProjectsFeed(url string) Feed {
	return Feed{
		Name: FeedProjects,
		URL:  url,
		Columns: []Column{
			{Label: "PROYECTOS/INSTITUCION", Aliases: []string{"institucion", "institution"}},
			{Label: "PROYECTOS/PROGRAMAS", Aliases: []string{"programas", "programa", "programs"}},
			{Label: "PROYECTOS/PROYECTOS", Aliases: []string{"proyectos", "proyecto", "projects", "project"}},
			{Label: "PROYECTOS/ESTADO", Aliases: []string{"estado", "status"}, Status: true},
		},
	}
}

// FlightsFeed describes the flights sheet.
func FlightsFeed(url string) Feed {
	return Feed{
		Name: FeedFlights,
		URL:  url,
		Columns: []Column{
			{Label: "VUELOS/FECHA", Aliases: []string{"fecha", "date"}},
			{Label: "VUELOS/AERONAVE", Aliases: []string{"aeronave", "aircraft", "plane"}},
			{Label: "VUELOS/TIPO DE VUELO", Aliases: []string{"tipo_de_vuelo", "tipo_vuelo", "flight_type"}},
			{Label: "VUELOS/DESTINO", Aliases: []string{"destino", "destination"}},
			{Label: "VUELOS/HORA DE SALIDA", Aliases: []string{"hora_de_salida", "hora_salida", "hora", "std", "time"}},
		},
	}
}
