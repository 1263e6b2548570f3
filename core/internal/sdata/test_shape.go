package sdata

// GetTestShape returns the shape of a trip document used in tests:
//
//	trip_id, carrier, meta{source}
//	legs[] {status, fare, stops[] {city, arrival, passengers[] {name}}}
func GetTestShape() *Shape {
	return New(map[string]FieldDescriptor{
		"trip_id":   {Name: "trip_id", PropertyPath: "trip_id", Type: FieldScalar},
		"carrier":   {Name: "carrier", PropertyPath: "carrier", Type: FieldScalar},
		"meta":      {Name: "meta", PropertyPath: "meta", Type: "object"},
		"source":    {Name: "source", PropertyPath: "meta.source", ParentPath: "meta", Type: FieldScalar},
		"leg":       {Name: "leg", PropertyPath: "legs", Type: FieldNested},
		"status":    {Name: "status", PropertyPath: "legs.status", ParentPath: "leg", Type: FieldScalar},
		"fare":      {Name: "fare", PropertyPath: "legs.fare", ParentPath: "leg", Type: FieldScalar},
		"stop":      {Name: "stop", PropertyPath: "legs.stops", ParentPath: "leg", Type: FieldNested},
		"city":      {Name: "city", PropertyPath: "legs.stops.city", ParentPath: "stop", Type: FieldScalar},
		"arrival":   {Name: "arrival", PropertyPath: "legs.stops.arrival", ParentPath: "stop", Type: FieldScalar},
		"passenger": {Name: "passenger", PropertyPath: "legs.stops.passengers", ParentPath: "stop", Type: FieldNested},
		"name":      {Name: "name", PropertyPath: "legs.stops.passengers.name", ParentPath: "passenger", Type: FieldScalar},
	})
}

// GetTestShapeJSON is the JSON description of a two field shape.
func GetTestShapeJSON() []byte {
	return []byte(`{
	"leg": {"type": "nested", "parent_path": null, "this_property_path": "legs", "name": "leg"},
	"status": {"type": "string", "parent_path": "leg", "this_property_path": "legs.status", "name": "status"}
}`)
}
