package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dpup/intel-overlay/server/internal/clients/drawtools"
	"github.com/dpup/intel-overlay/server/internal/lib/donelinks"
	"github.com/dpup/intel-overlay/server/internal/lib/events"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/lib/offset"
	"github.com/dpup/intel-overlay/server/internal/lib/overlay"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	geoUtils := geo.NewGeoUtils()

	switch command {
	case "transform":
		handleTransform()
	case "reverse":
		handleReverse()
	case "check":
		handleCheck()
	case "decode-polyline":
		handleDecodePolyline(geoUtils)
	case "done-links":
		handleDoneLinks()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleTransform() {
	fs := flag.NewFlagSet("transform", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "WGS-84 latitude")
	lng := fs.Float64("lng", 0, "WGS-84 longitude")
	mapType := fs.String("type", "ROADMAP", "Map type (ROADMAP, TERRAIN, SATELLITE, HYBRID)")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  offset transform --lat 39.9 --lng 116.4")
		fmt.Println("  (Beijing, shifted onto GCJ-02 road tiles)")
		os.Exit(1)
	}

	p, err := geo.NewPoint(*lat, *lng)
	if err != nil {
		log.Fatalf("Invalid point: %v", err)
	}
	t := offset.ParseMapType(*mapType)
	out := offset.MapTileCoordinate(p, t)
	dLat, dLng := out.Latitude-p.Latitude, out.Longitude-p.Longitude

	fmt.Printf("Transform (%s):\n", t)
	fmt.Printf("  WGS-84: (%.9f, %.9f)\n", p.Latitude, p.Longitude)
	fmt.Printf("  Tiles:  (%.9f, %.9f)\n", out.Latitude, out.Longitude)
	fmt.Printf("  Shift:  (%+.9f, %+.9f) degrees\n", dLat, dLng)
	if offset.IsOutOfChina(p.Latitude, p.Longitude) {
		fmt.Println("  Point is outside China; no shift applied")
	} else if !t.Offset() {
		fmt.Println("  Satellite imagery is not shifted")
	}
}

func handleReverse() {
	fs := flag.NewFlagSet("reverse", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "GCJ-02 latitude")
	lng := fs.Float64("lng", 0, "GCJ-02 longitude")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  offset reverse --lat 39.901403529849404 --lng 116.40624278491117")
		os.Exit(1)
	}

	wgs := offset.Reverse(*lat, *lng)
	check := offset.Transform(wgs.Latitude, wgs.Longitude)

	fmt.Printf("Reverse:\n")
	fmt.Printf("  GCJ-02: (%.9f, %.9f)\n", *lat, *lng)
	fmt.Printf("  WGS-84: (%.9f, %.9f)\n", wgs.Latitude, wgs.Longitude)
	fmt.Printf("  Round trip error: (%.2e, %.2e) degrees\n", check.Latitude-*lat, check.Longitude-*lng)
}

func handleCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude")
	lng := fs.Float64("lng", 0, "Longitude")

	fs.Parse(os.Args[2:])

	inside := !offset.IsOutOfChina(*lat, *lng)
	fmt.Printf("(%.6f, %.6f) inside China bounding box: %v\n", *lat, *lng, inside)
	if !inside {
		os.Exit(2)
	}
}

func handleDecodePolyline(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("decode-polyline", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string")
	mapType := fs.String("type", "ROADMAP", "Map type to transform the points for")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  offset decode-polyline --polyline \"_p~iF~ps|U_ulLnnqC_mqNvxq`@\"")
		os.Exit(1)
	}

	points, err := geoUtils.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	t := offset.ParseMapType(*mapType)
	shifted := make([]geo.Point, len(points))
	fmt.Printf("Decoded polyline (%d points):\n", len(points))
	for i, p := range points {
		shifted[i] = offset.MapTileCoordinate(p, t)
		fmt.Printf("  %d: (%.6f, %.6f) -> (%.6f, %.6f)\n", i,
			p.Latitude, p.Longitude, shifted[i].Latitude, shifted[i].Longitude)
	}

	if len(points) >= 2 {
		shape, _ := geo.NewShape(points, false)
		length, err := geoUtils.ShapeLength(shape)
		if err == nil {
			fmt.Printf("Length: %.2f meters (%.2f km)\n", length, length/1000)
		}
	}
	fmt.Printf("Shifted polyline (%s): %s\n", t, geoUtils.EncodePolyline(shifted))
}

// staticLinks serves a fixed link set read from a file
type staticLinks map[string]geo.Link

func (s staticLinks) Links() map[string]geo.Link { return s }

type staticShapes []geo.Shape

func (s staticShapes) Shapes() []geo.Shape { return s }

func handleDoneLinks() {
	fs := flag.NewFlagSet("done-links", flag.ExitOnError)
	planPath := fs.String("plan", "", "Draw-tools export (JSON)")
	linksPath := fs.String("links", "", "Links file: JSON array of {guid, team, from, to}")
	kmlPath := fs.String("kml", "", "Write the done links to this KML file")

	fs.Parse(os.Args[2:])

	if *planPath == "" || *linksPath == "" {
		fmt.Println("Example usage:")
		fmt.Println("  offset done-links --plan plan.json --links links.json --kml done.kml")
		os.Exit(1)
	}

	planData, err := os.ReadFile(*planPath)
	if err != nil {
		log.Fatalf("Error reading plan: %v", err)
	}
	shapes, err := drawtools.NewParser().Parse(planData)
	if err != nil {
		log.Fatalf("Error parsing plan: %v", err)
	}

	linkData, err := os.ReadFile(*linksPath)
	if err != nil {
		log.Fatalf("Error reading links: %v", err)
	}
	var linkList []geo.Link
	if err := json.Unmarshal(linkData, &linkList); err != nil {
		log.Fatalf("Error parsing links: %v", err)
	}
	links := make(staticLinks, len(linkList))
	for _, l := range linkList {
		links[l.GUID] = l
	}

	bus := events.NewBus()
	layer := overlay.NewLayer()
	tracker, err := donelinks.NewTracker(links, staticShapes(shapes), layer, bus)
	if err != nil {
		log.Fatalf("Error creating tracker: %v", err)
	}
	defer tracker.Close()
	bus.ActivationChanged(true)

	highlights := layer.Highlights()
	fmt.Printf("Plan: %d shapes, %d links, %d done\n", len(shapes), len(links), len(highlights))
	for _, h := range highlights {
		fmt.Printf("  %-40s %-12s (%.6f, %.6f) - (%.6f, %.6f)\n", h.GUID, h.Team,
			h.Edge.A.Latitude, h.Edge.A.Longitude, h.Edge.B.Latitude, h.Edge.B.Longitude)
	}

	if *kmlPath != "" {
		f, err := os.Create(*kmlPath)
		if err != nil {
			log.Fatalf("Error creating KML file: %v", err)
		}
		defer f.Close()
		if err := overlay.WriteKML(f, "Done Links", highlights); err != nil {
			log.Fatalf("Error writing KML: %v", err)
		}
		fmt.Printf("Wrote %s\n", *kmlPath)
	}
}

func printUsage() {
	fmt.Println("offset - China map offset and done-links utilities")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  transform        Shift a WGS-84 point onto the tiles of a map type")
	fmt.Println("  reverse          Recover WGS-84 from a GCJ-02 point")
	fmt.Println("  check            Report whether a point is inside the China bounding box")
	fmt.Println("  decode-polyline  Decode a polyline and shift each point")
	fmt.Println("  done-links       Match links against a draw-tools plan")
	fmt.Println("  help             Show this message")
	fmt.Println()
	fmt.Println("Run 'offset <command>' without flags for an example.")
}
