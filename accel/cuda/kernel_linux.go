//go:build linux

package cuda

// PTX for the elementwise addition kernel, loaded at runtime via
// cuModuleLoadData so no nvcc is needed. Target sm_50 keeps it
// JIT-compatible with every card a CUDA 11+ driver still schedules.
//
// The global index is derived from the block and thread builtins with the
// actual block width (%ntid.x), so the same module serves every block size
// the sweeps request. Threads with idx >= n fall through without a write.

const addPTX = `
.version 7.0
.target sm_50
.address_size 64

// add_f32: out[i] = a[i] + b[i] for i in [0, n)
.visible .entry add_f32(
    .param .u64 p_out,
    .param .u64 p_a,
    .param .u64 p_b,
    .param .u32 p_n
) {
    .reg .u32 %tidx, %bidx, %ntidx, %idx, %n;
    .reg .u64 %out, %a, %b, %off, %addr;
    .reg .f32 %va, %vb, %vc;
    .reg .pred %p;

    ld.param.u64 %out, [p_out];
    ld.param.u64 %a, [p_a];
    ld.param.u64 %b, [p_b];
    ld.param.u32 %n, [p_n];

    mov.u32 %tidx, %tid.x;
    mov.u32 %bidx, %ctaid.x;
    mov.u32 %ntidx, %ntid.x;
    mad.lo.u32 %idx, %bidx, %ntidx, %tidx;
    setp.ge.u32 %p, %idx, %n;
    @%p bra $L_add_done;

    mul.wide.u32 %off, %idx, 4;
    add.u64 %addr, %a, %off;
    ld.global.f32 %va, [%addr];
    add.u64 %addr, %b, %off;
    ld.global.f32 %vb, [%addr];
    add.f32 %vc, %va, %vb;
    add.u64 %addr, %out, %off;
    st.global.f32 [%addr], %vc;
$L_add_done:
    ret;
}
`
