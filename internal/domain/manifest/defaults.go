package manifest

// Default returns the pinned manifest the application is currently built against.
func Default() *Manifest {
	return &Manifest{
		Base:   parseAll(baseReferences),
		Darwin: parseAll(darwinReferences),
		Linux:  parseAll(linuxReferences),
	}
}

//nolint:gochecknoglobals // Pinned package list.
var baseReferences = []string{
	"blackmagic/12.0-0@vuo+conan+blackmagic/stable",
	"curl/7.73.0-1@vuo+conan+curl/stable",
	"discount/2.2.6-0@vuo+conan+discount/stable",
	"ffmpeg/4.4-3@vuo+conan+ffmpeg/stable",
	"freeframe/1.6-1@vuo+conan+freeframe/stable",
	"freeimage/3.18.0-0@vuo+conan+freeimage/stable",
	"gamma/0.9.8-2@vuo+conan+gamma/stable",
	"gettext/0.21-0@vuo+conan+gettext/stable",
	"glib/2.66.2-0@vuo+conan+glib/stable",
	"graphviz/2.44.1-1@vuo+conan+graphviz/stable",
	"jsonc/0.15-0@vuo+conan+jsonc/stable",
	"libcsv/3.0.3-5@vuo+conan+libcsv/stable",
	"libfacedetection/1-1@vuo+conan+libfacedetection/stable",
	"libffi/3.4pre-0@vuo+conan+libffi/stable",
	"libfreenect/0.6.1-0@vuo+conan+libfreenect/stable",
	"libfreenect2/0-7@vuo+conan+libfreenect2/stable",
	"liblqr/0.4.2-5@vuo+conan+liblqr/stable",
	"libusb/1.0.23-0@vuo+conan+libusb/stable",
	"libxml2/2.9.10-0@vuo+conan+libxml2/stable",
	"llvm/5.0.2-5@vuo+conan+llvm/stable",
	"muparser/2.3.2-0@vuo+conan+muparser/stable",
	"ndi/5.0.0-0@vuo+conan+ndi/stable",
	"oai/5.0.1-1@vuo+conan+oai/stable",
	"openssl/1.1.1h-0@vuo+conan+openssl/stable",
	"oscpack/0-5@vuo+conan+oscpack/stable",
	"qt/5.12.11-3@vuo+conan+qt/stable",
	"rtaudio/5.2.0-0@vuo+conan+rtaudio/stable",
	"rtmidi/4.0.0-1@vuo+conan+rtmidi/stable",
	"wjelement/1.3-2@vuo+conan+wjelement/stable",
	"zeromq/4.3.3-0@vuo+conan+zeromq/stable",
	"zlib/1.2.11-2@vuo+conan+zlib/stable",
	"zxing/0-4@vuo+conan+zxing/stable",
}

//nolint:gochecknoglobals // Pinned package list.
var darwinReferences = []string{
	"ld64/530-5@vuo+conan+ld64/stable",
	"cctools/949.0.1-2@vuo+conan+cctools/stable",
	"codesign_allocate/10.3+12.4-0@vuo+conan+codesign_allocate/stable",
	"fxplug/4.2.2-1@vuo+conan+fxplug/stable",
	"hap/1.5.3-1@vuo+conan+hap/stable",
	"macos-sdk/11.0-0@vuo+conan+macos-sdk/stable",
	"syphon/5-1@vuo+conan+syphon/stable",
}

// Components macOS ships as system libraries but Linux does not.
//
//nolint:gochecknoglobals // Pinned package list.
var linuxReferences = []string{
	"libdispatch/4.0.3-1@vuo+conan+libdispatch/stable",
}

func parseAll(refs []string) []Declaration {
	decls := make([]Declaration, 0, len(refs))
	for _, ref := range refs {
		decls = append(decls, MustParseReference(ref))
	}

	return decls
}
