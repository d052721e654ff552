// Package layout describes the engine's RenderOptions block in memory.
//
// The block is a C struct with a fixed field order. Its offsets depend on the
// platform's pointer and size_t widths, so a Layout is computed once per
// Platform and shared:
//
//	Field                Kind    wasm32   64-bit
//	──────────────────────────────────────────────
//	width                i32     0        0
//	height               i32     4        4
//	zoom                 f32     8        8
//	dpi                  i32     12       12
//	skip_system_fonts    bool    16       16
//	background           ptr     20       24
//	export_id            ptr     24       32
//	export_area_page     bool    28       40
//	export_area_drawing  bool    29       41
//	resources_dir        ptr     32       48
//	fonts                ptr     36       56
//	font_lens            ptr     40       64
//	font_count           size    44       72
//	font_file            ptr     48       80
//	font_dir             ptr     52       88
//	serif_family         ptr     56       96
//	sans_serif_family    ptr     60       104
//	cursive_family       ptr     64       112
//	fantasy_family       ptr     68       120
//	monospace_family     ptr     72       128
//	──────────────────────────────────────────────
//	size / align                 76 / 4   136 / 8
//
// Params is the Go record of one block. Encode writes it through a Memory and
// Decode reads it back; neither allocates engine memory.
package layout
