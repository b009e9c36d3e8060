package schema

import "sync"

// Entity kinds a catalog may contain.
const (
	KindVehicle     = "Vehicle"
	KindPedestrian  = "Pedestrian"
	KindMiscObject  = "MiscObject"
	KindController  = "Controller"
	KindEnvironment = "Environment"
	KindManeuver    = "Maneuver"
	KindTrajectory  = "Trajectory"
	KindRoute       = "Route"
)

// Element tags with meaning to the resolver.
const (
	TagParameterDeclarations = "ParameterDeclarations"
	TagParameterDeclaration  = "ParameterDeclaration"
	TagCatalogReference      = "CatalogReference"
	TagParameterAssignments  = "ParameterAssignments"
	TagParameterAssignment   = "ParameterAssignment"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the built-in registry. It is shared and must not be
// extended by callers; build a fresh one with NewRegistry for that.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = buildDefault()
	})
	return defaultRegistry
}

func req(t ValueType) Field { return Field{Type: t, Required: true} }
func opt(t ValueType) Field { return Field{Type: t} }

var (
	role = EnumOf("none", "ambulance", "civil", "fire", "military", "police", "publicTransport", "roadAssistance")

	vehicleCategory = EnumOf("bicycle", "bus", "car", "motorbike", "semitrailer",
		"trailer", "train", "tram", "truck", "van")
	pedestrianCategory = EnumOf("animal", "pedestrian", "wheelchair")
	miscObjectCategory = EnumOf("barrier", "building", "crosswalk", "gantry", "none",
		"obstacle", "parkingSpace", "patch", "pole", "railing", "roadMark",
		"soundBarrier", "streetLamp", "trafficIsland", "tree", "vegetation", "wind")
	controllerType = EnumOf("lateral", "longitudinal", "lighting", "animation",
		"movement", "appearance", "all")
	priority           = EnumOf("override", "overwrite", "skip", "parallel")
	routeStrategy      = EnumOf("fastest", "shortest", "leastIntersections", "random")
	dynamicsShape      = EnumOf("linear", "cubic", "sinusoidal", "step")
	dynamicsDimension  = EnumOf("rate", "time", "distance")
	precipitationType  = EnumOf("dry", "rain", "snow")
	fractionalCoverage = EnumOf("zeroOktas", "oneOktas", "twoOktas", "threeOktas",
		"fourOktas", "fiveOktas", "sixOktas", "sevenOktas", "eightOktas", "nineOktas")
)

func buildDefault() *Registry {
	r := NewRegistry()

	entityChildren := []string{TagParameterDeclarations, "BoundingBox", "Properties"}

	r.AddKind(&Shape{
		Tag: KindVehicle,
		Fields: map[string]Field{
			"name":            req(TString),
			"vehicleCategory": req(vehicleCategory),
			"mass":            opt(TDouble),
			"model3d":         opt(TString),
			"role":            opt(role),
		},
		Children: append([]string{"Performance", "Axles", "TrailerHitch", "TrailerCoupler", "Trailer"}, entityChildren...),
	})
	r.AddKind(&Shape{
		Tag: KindPedestrian,
		Fields: map[string]Field{
			"name":               req(TString),
			"pedestrianCategory": req(pedestrianCategory),
			"mass":               opt(TDouble),
			"model3d":            opt(TString),
			"role":               opt(role),
		},
		Children: entityChildren,
	})
	r.AddKind(&Shape{
		Tag: KindMiscObject,
		Fields: map[string]Field{
			"name":               req(TString),
			"miscObjectCategory": req(miscObjectCategory),
			"mass":               opt(TDouble),
			"model3d":            opt(TString),
		},
		Children: entityChildren,
	})
	r.AddKind(&Shape{
		Tag: KindController,
		Fields: map[string]Field{
			"name":           req(TString),
			"controllerType": opt(controllerType),
		},
		Children: []string{TagParameterDeclarations, "Properties"},
	})
	r.AddKind(&Shape{
		Tag: KindEnvironment,
		Fields: map[string]Field{
			"name": req(TString),
		},
		Children: []string{TagParameterDeclarations, "TimeOfDay", "Weather", "RoadCondition"},
	})
	r.AddKind(&Shape{
		Tag: KindManeuver,
		Fields: map[string]Field{
			"name": req(TString),
		},
		Children: []string{TagParameterDeclarations, "Event"},
	})
	r.AddKind(&Shape{
		Tag: KindTrajectory,
		Fields: map[string]Field{
			"name":   req(TString),
			"closed": req(TBoolean),
		},
		Children: []string{TagParameterDeclarations, "Shape"},
	})
	r.AddKind(&Shape{
		Tag: KindRoute,
		Fields: map[string]Field{
			"name":   req(TString),
			"closed": req(TBoolean),
		},
		Children: []string{TagParameterDeclarations, "Waypoint"},
	})

	elements := []*Shape{
		{Tag: "Center", Fields: doubles("x", "y", "z")},
		{Tag: "Dimensions", Fields: doubles("width", "length", "height")},
		{Tag: "Performance", Fields: doubles("maxSpeed", "maxAcceleration", "maxDeceleration", "mass")},
		{Tag: "FrontAxle", Fields: doubles("maxSteering", "wheelDiameter", "trackWidth", "positionX", "positionZ")},
		{Tag: "RearAxle", Fields: doubles("maxSteering", "wheelDiameter", "trackWidth", "positionX", "positionZ")},
		{Tag: "AdditionalAxle", Fields: doubles("maxSteering", "wheelDiameter", "trackWidth", "positionX", "positionZ")},
		{Tag: "Property", Fields: map[string]Field{"name": req(TString), "value": req(TString)}},
		{Tag: "Event", Fields: map[string]Field{
			"name":                  req(TString),
			"priority":              opt(priority),
			"maximumExecutionCount": opt(TUnsignedInt),
		}},
		{Tag: "Action", Fields: map[string]Field{"name": req(TString)}},
		{Tag: "AbsoluteTargetSpeed", Fields: doubles("value")},
		{Tag: "RelativeTargetSpeed", Fields: doubles("value")},
		{Tag: "TransitionDynamics", Fields: map[string]Field{
			"dynamicsShape":     req(dynamicsShape),
			"dynamicsDimension": req(dynamicsDimension),
			"value":             req(TDouble),
		}},
		{Tag: "Waypoint", Fields: map[string]Field{"routeStrategy": req(routeStrategy)}},
		{Tag: "WorldPosition", Fields: doubles("x", "y", "z", "h", "p", "r")},
		{Tag: "LanePosition", Fields: map[string]Field{
			"roadId": req(TString),
			"laneId": req(TString),
			"s":      req(TDouble),
			"offset": opt(TDouble),
		}},
		{Tag: "Vertex", Fields: doubles("time")},
		{Tag: "Clothoid", Fields: doubles("curvature", "curvatureDot", "curvaturePrime", "length", "startTime", "stopTime")},
		{Tag: "TimeOfDay", Fields: map[string]Field{"animation": req(TBoolean), "dateTime": req(TDateTime)}},
		{Tag: "Weather", Fields: map[string]Field{
			"atmosphericPressure":  opt(TDouble),
			"temperature":          opt(TDouble),
			"fractionalCloudCover": opt(fractionalCoverage),
		}},
		{Tag: "Sun", Fields: doubles("illuminance", "azimuth", "elevation")},
		{Tag: "Fog", Fields: doubles("visualRange")},
		{Tag: "Precipitation", Fields: map[string]Field{
			"precipitationType":      req(precipitationType),
			"precipitationIntensity": opt(TDouble),
		}},
		{Tag: "RoadCondition", Fields: doubles("frictionScaleFactor")},
		{Tag: TagParameterAssignment, Fields: map[string]Field{"parameterRef": req(TString), "value": req(TString)}},
		{Tag: TagCatalogReference, Fields: map[string]Field{"catalogName": req(TString), "entryName": req(TString)}},
	}
	for _, s := range elements {
		r.AddElement(s)
	}
	return r
}

func doubles(names ...string) map[string]Field {
	m := make(map[string]Field, len(names))
	for _, n := range names {
		m[n] = opt(TDouble)
	}
	return m
}
