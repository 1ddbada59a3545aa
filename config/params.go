package config

import (
	"fmt"
	"net/url"
)

// SearchParams are the query parameters of the inspection search form.
type SearchParams struct {
	Output             string // W renders the web results view
	BusinessName       string
	BusinessAddress    string
	Longitude          string
	Latitude           string
	City               string
	ZipCode            string
	InspectionType     string
	InspectionStart    string // M/D/YYYY
	InspectionEnd      string // M/D/YYYY
	ClosedBusiness     string // A includes closed businesses
	ViolationPoints    string
	ViolationRedPoints string
	ViolationDescr     string
	FuzzySearch        string
	Sort               string // H sorts by highest score
}

// DefaultSearchParams returns the parameters of an unfiltered search.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Output:         "W",
		InspectionType: "All",
		ClosedBusiness: "A",
		FuzzySearch:    "N",
		Sort:           "H",
	}
}

// paramNames lists the site parameter names in the order the form submits them.
var paramNames = []string{
	"Output",
	"Business_Name",
	"Business_Address",
	"Longitude",
	"Latitude",
	"City",
	"Zip_Code",
	"Inspection_Type",
	"Inspection_Start",
	"Inspection_End",
	"Inspection_Closed_Business",
	"Violation_Points",
	"Violation_Red_Points",
	"Violation_Descr",
	"Fuzzy_Search",
	"Sort",
}

func (p *SearchParams) field(name string) *string {
	switch name {
	case "Output":
		return &p.Output
	case "Business_Name":
		return &p.BusinessName
	case "Business_Address":
		return &p.BusinessAddress
	case "Longitude":
		return &p.Longitude
	case "Latitude":
		return &p.Latitude
	case "City":
		return &p.City
	case "Zip_Code":
		return &p.ZipCode
	case "Inspection_Type":
		return &p.InspectionType
	case "Inspection_Start":
		return &p.InspectionStart
	case "Inspection_End":
		return &p.InspectionEnd
	case "Inspection_Closed_Business":
		return &p.ClosedBusiness
	case "Violation_Points":
		return &p.ViolationPoints
	case "Violation_Red_Points":
		return &p.ViolationRedPoints
	case "Violation_Descr":
		return &p.ViolationDescr
	case "Fuzzy_Search":
		return &p.FuzzySearch
	case "Sort":
		return &p.Sort
	}
	return nil
}

// Set overrides a parameter by its site name.
func (p *SearchParams) Set(name, value string) error {
	f := p.field(name)
	if f == nil {
		return fmt.Errorf("unknown search parameter %q", name)
	}
	*f = value
	return nil
}

// Get returns a parameter by its site name.
func (p SearchParams) Get(name string) (string, bool) {
	f := p.field(name)
	if f == nil {
		return "", false
	}
	return *f, true
}

// Values encodes every parameter, including empty ones, as the form does.
func (p SearchParams) Values() url.Values {
	values := make(url.Values, len(paramNames))
	for _, name := range paramNames {
		v, _ := p.Get(name)
		values.Set(name, v)
	}
	return values
}
