// Package config loads svg2png configuration files.
//
// Files are YAML, decoded strictly so that unknown keys are errors:
//
//	render:
//	  width: 800
//	  background: white
//	fonts:
//	  files: [fonts/Inter-Regular.ttf]
//	  families:
//	    sansSerif: Inter
//	engine:
//	  wasm: resvg_wrapper.wasm
//	  poolSize: 4
//	log:
//	  level: info
//
// Relative paths in fonts.files, engine.wasm and engine.mounts[].host are
// resolved against the directory of the file.
package config
