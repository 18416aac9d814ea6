package interp

import (
	"encoding/binary"
	"testing"

	"github.com/wippyai/clrvm/cil"
	"github.com/wippyai/clrvm/image"
	"github.com/wippyai/clrvm/metadata"
	"github.com/wippyai/clrvm/stack"
)

func method(name string, code []byte) struct {
	name string
	code []byte
} {
	return struct {
		name string
		code []byte
	}{name, code}
}

// Scenario 1: entry point dispatch. {Ret} returns 0, nothing beyond it
// is decoded.
func TestRun_EntryPointReturnsZero(t *testing.T) {
	asm, _, _ := buildSimpleAssembly(t, "App", "App", "Program", nil,
		[]struct {
			name string
			code []byte
		}{method("Main", []byte{byte(cil.Ret)})},
		"Main")

	rt := New(0)
	code, err := rt.Run(asm)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

// Scenario 2: constant round-trip. {Ldc.i4 42; Stloc.0; Ldloc.0; Pop; Ret}
// leaves the stack empty.
func TestRun_ConstantRoundTrip(t *testing.T) {
	var code []byte
	code = append(code, byte(cil.LdcI4))
	code = append(code, le32(42)...)
	code = append(code, byte(cil.StLoc0), byte(cil.LdLoc0), byte(cil.Pop), byte(cil.Ret))

	asm, _, _ := buildSimpleAssembly(t, "App", "App", "Program", nil,
		[]struct {
			name string
			code []byte
		}{method("Main", code)},
		"Main")

	rt := New(0)
	if _, err := rt.Run(asm); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d := rt.Stack().Depth(); d != 0 {
		t.Errorf("stack depth after run = %d, want 0", d)
	}
}

// Scenario 3: static-field first access triggers .cctor exactly once.
func TestEnsureInitialized_CctorRunsOnce(t *testing.T) {
	cctorCode := append([]byte{byte(cil.LdcI4)}, le32(7)...)
	cctorCode = append(cctorCode, byte(cil.Stsfld))
	cctorCode = append(cctorCode, le32(uint32(metadata.NewToken(metadata.TableField, 1)))...)
	cctorCode = append(cctorCode, byte(cil.Ret))

	mainCode := append([]byte{byte(cil.Ldsfld)}, le32(uint32(metadata.NewToken(metadata.TableField, 1)))...)
	mainCode = append(mainCode, byte(cil.Pop), byte(cil.Ret))

	asm, fields, _ := buildSimpleAssembly(t, "App", "App", "T", []string{"F"},
		[]struct {
			name string
			code []byte
		}{method(".cctor", cctorCode), method("Main", mainCode)},
		"Main")

	fieldTok := fields["F"]
	typeDefTok, err := asm.GetTypeDefOfField(fieldTok)
	if err != nil {
		t.Fatalf("GetTypeDefOfField: %v", err)
	}

	rt := New(0)
	if _, err := rt.Run(asm); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tag, bytes, ok := rt.statics.Get(asm.Name(), fieldTok)
	if !ok || tag != stack.TagInt32 || int32(binary.LittleEndian.Uint32(bytes)) != 7 {
		t.Fatalf("static field F = (%v, %v, %v), want (Int32, 7, true)", tag, bytes, ok)
	}
	if !rt.statics.IsInitialized(asm.Name(), typeDefTok) {
		t.Fatal("type not marked initialized after first access")
	}

	// Overwrite the field directly, then try to re-trigger initialization:
	// if ensureInitialized incorrectly re-ran .cctor, it would clobber this
	// sentinel back to 7.
	rt.statics.Set(asm.Name(), fieldTok, stack.TagInt32, []byte{99, 0, 0, 0})
	if err := rt.ensureInitialized(asm, typeDefTok); err != nil {
		t.Fatalf("ensureInitialized: %v", err)
	}
	_, bytes, _ = rt.statics.Get(asm.Name(), fieldTok)
	if int32(binary.LittleEndian.Uint32(bytes)) != 99 {
		t.Errorf("field after second ensureInitialized = %d, want 99 (cctor must not re-run)", int32(binary.LittleEndian.Uint32(bytes)))
	}
}

// Scenario 4: cross-assembly call via loader. B is absent from the
// registry initially; a loader supplies it on first call and must not be
// invoked again for the second identical call.
func TestCall_CrossAssemblyViaLoader(t *testing.T) {
	asmB, _, _ := buildSimpleAssembly(t, "B", "N", "T", nil,
		[]struct {
			name string
			code []byte
		}{method("M", []byte{byte(cil.Ret)})},
		"M")

	s := metadata.NewStrBuilder()
	modName := s.Add("A")
	tN := s.Add("N")
	tT := s.Add("T")
	mM := s.Add("M")
	bName := s.Add("B")
	mainName := s.Add("Main")

	memberRefTok := metadata.NewToken(metadata.TableMemberRef, 1)
	var code []byte
	code = append(code, byte(cil.Call))
	code = append(code, le32(uint32(memberRefTok))...)
	code = append(code, byte(cil.Call))
	code = append(code, le32(uint32(memberRefTok))...)
	code = append(code, byte(cil.Ret))
	body := tinyBody(code)

	typeRefRow := metadata.U16Row((1<<2)|2, tT, tN) // ResolutionScope = AssemblyRef#1 (tag 2)
	memberRefRow := metadata.U16Row((1<<3)|1, mM, 0) // Class = TypeRef#1 (tag 1)
	assemblyRefRow := append(metadata.U16Row(1, 0, 0, 0), append(le32(0), metadata.U16Row(0, bName, 0, 0)...)...)
	methodDefRow := append(le32(0), metadata.U16Row(0, 0, mainName, 0, 1)...)

	tilde := metadata.BuildTilde(map[metadata.TableID][][]byte{
		metadata.TableModule:      {metadata.U16Row(0, modName, 0, 0, 0)},
		metadata.TableTypeRef:     {typeRefRow},
		metadata.TableMemberRef:   {memberRefRow},
		metadata.TableAssemblyRef: {assemblyRefRow},
		metadata.TableMethodDef:   {methodDefRow},
	})
	root := metadata.BuildRoot([]metadata.RootStream{
		{Name: "#~", Data: tilde},
		{Name: "#Strings", Data: s.Bytes()},
	})
	binary.LittleEndian.PutUint32(methodDefRow[0:4], methodRVA(len(root), 0))
	tilde = metadata.BuildTilde(map[metadata.TableID][][]byte{
		metadata.TableModule:      {metadata.U16Row(0, modName, 0, 0, 0)},
		metadata.TableTypeRef:     {typeRefRow},
		metadata.TableMemberRef:   {memberRefRow},
		metadata.TableAssemblyRef: {assemblyRefRow},
		metadata.TableMethodDef:   {methodDefRow},
	})
	root = metadata.BuildRoot([]metadata.RootStream{
		{Name: "#~", Data: tilde},
		{Name: "#Strings", Data: s.Bytes()},
	})

	sectionData := append(append([]byte(nil), root...), body...)
	b := image.NewBuilder()
	b.SectionData = sectionData
	b.MetaDataRVA = 0
	b.MetaDataSize = uint32(len(root))
	b.EntryPoint = uint32(metadata.NewToken(metadata.TableMethodDef, 1))
	asmA, err := metadata.Load(b.Build())
	if err != nil {
		t.Fatalf("Load A: %v", err)
	}

	loaderCalls := 0
	rt := New(0)
	rt.AddAssemblyLoader(func(name string) (*metadata.Assembly, error) {
		loaderCalls++
		if name == "B" {
			return asmB, nil
		}
		return nil, nil
	})

	if _, err := rt.Run(asmA); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loaderCalls != 1 {
		t.Errorf("loader invoked %d times, want 1", loaderCalls)
	}
	if _, ok := rt.assemblies["B"]; !ok {
		t.Error("B was not registered after loader resolved it")
	}
}

// Scenario 5: unknown opcode aborts the frame with Unimplemented.
func TestRun_UnknownOpcodeFails(t *testing.T) {
	asm, _, _ := buildSimpleAssembly(t, "App", "App", "Program", nil,
		[]struct {
			name string
			code []byte
		}{method("Main", []byte{byte(cil.Nop), 0xFF})},
		"Main")

	rt := New(0)
	if _, err := rt.Run(asm); err == nil {
		t.Fatal("expected Unimplemented error for opcode 0xFF")
	}
}

// Scenario 7: newobj issues a fresh, strictly increasing heapKey on every
// call (spec.md §8: two newobj calls never produce equal managed pointers).
func TestRun_NewobjHeapKeysAreMonotonic(t *testing.T) {
	ctorTok := metadata.NewToken(metadata.TableMethodDef, 1)
	mainCode := append([]byte{byte(cil.Newobj)}, le32(uint32(ctorTok))...)
	mainCode = append(mainCode, byte(cil.Newobj))
	mainCode = append(mainCode, le32(uint32(ctorTok))...)
	mainCode = append(mainCode, byte(cil.Ret))

	asm, _, _ := buildSimpleAssembly(t, "App", "App", "T", []string{"F"},
		[]struct {
			name string
			code []byte
		}{method(".ctor", []byte{byte(cil.Ret)}), method("Main", mainCode)},
		"Main")

	rt := New(0)
	if _, err := rt.Run(asm); err != nil {
		t.Fatalf("Run: %v", err)
	}

	second, err := rt.Stack().PopManagedPointer()
	if err != nil {
		t.Fatalf("PopManagedPointer (second newobj): %v", err)
	}
	first, err := rt.Stack().PopManagedPointer()
	if err != nil {
		t.Fatalf("PopManagedPointer (first newobj): %v", err)
	}
	if first == second {
		t.Fatalf("two newobj calls produced equal heap keys: %d", first)
	}
	if second <= first {
		t.Errorf("heap keys not monotonically increasing: first=%d second=%d", first, second)
	}
}

// Scenario 8: ldsflda pushes a managed pointer, not an unmanaged one, since
// static-field slots are tracked the same way heap references are
// (spec.md §4.G).
func TestRun_LdsfldaPushesManagedPointer(t *testing.T) {
	mainCode := append([]byte{byte(cil.Ldsflda)}, le32(uint32(metadata.NewToken(metadata.TableField, 1)))...)
	mainCode = append(mainCode, byte(cil.Ret))

	asm, _, _ := buildSimpleAssembly(t, "App", "App", "T", []string{"F"},
		[]struct {
			name string
			code []byte
		}{method("Main", mainCode)},
		"Main")

	rt := New(0)
	if _, err := rt.Run(asm); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// PopManagedPointer requires an exact tag match; if ldsflda had pushed
	// TagUnmanagedPointer this would fail with a stack type mismatch.
	if _, err := rt.Stack().PopManagedPointer(); err != nil {
		t.Fatalf("PopManagedPointer after ldsflda: %v", err)
	}
	if d := rt.Stack().Depth(); d != 0 {
		t.Errorf("stack depth after pop = %d, want 0", d)
	}
}

// Scenario 6: branch skips the intervening instruction; no leftover slot
// from the skipped Ldc.i4 is left on the stack.
func TestRun_BranchSkipsInstruction(t *testing.T) {
	var code []byte
	code = append(code, byte(cil.BrS), 6)              // offset 0,1
	code = append(code, byte(cil.LdcI4))               // offset 2
	code = append(code, le32(99)...)                    // offset 3-6
	code = append(code, byte(cil.Ret))                  // offset 7
	code = append(code, byte(cil.LdcI4))               // offset 8
	code = append(code, le32(7)...)                     // offset 9-12
	code = append(code, byte(cil.Ret))                  // offset 13

	asm, _, _ := buildSimpleAssembly(t, "App", "App", "Program", nil,
		[]struct {
			name string
			code []byte
		}{method("Main", code)},
		"Main")

	rt := New(0)
	if _, err := rt.Run(asm); err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, err := rt.Stack().PopInt32()
	if err != nil {
		t.Fatalf("PopInt32: %v", err)
	}
	if v != 7 {
		t.Errorf("top of stack = %d, want 7 (ldc.i4 99 should have been skipped)", v)
	}
	if d := rt.Stack().Depth(); d != 0 {
		t.Errorf("stack depth after pop = %d, want 0", d)
	}
}
