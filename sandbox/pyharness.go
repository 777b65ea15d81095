package sandbox

// pyHarness is the driver executed inside the python3 subprocess. It
// reads a JSON payload on stdin, applies rlimits, builds the execution
// namespace (datasets mapping, optional df binding, pre-imported safe
// modules), runs the already-validated user code with captured streams,
// and writes a single JSON outcome to the real stdout.
//
// User stdout/stderr never reach the process streams directly; they are
// captured into the outcome so the Go side sees exactly one JSON
// document on stdout.
const pyHarness = `
import sys, json, io, traceback, resource

def _frame_dict(frame):
    return {
        "columns": [str(c) for c in frame.columns],
        "rows": json.loads(frame.to_json(orient="values")),
    }

def _capture_charts(out):
    if "matplotlib" not in sys.modules:
        return
    try:
        import matplotlib.pyplot as plt
    except Exception:
        return
    for num in list(plt.get_fignums()):
        try:
            fig = plt.figure(num)
            chart = {"kind": "line", "title": "", "x_label": "", "y_label": "", "series": []}
            for ax in fig.get_axes():
                chart["title"] = chart["title"] or (ax.get_title() or "")
                chart["x_label"] = chart["x_label"] or ax.get_xlabel()
                chart["y_label"] = chart["y_label"] or ax.get_ylabel()
                for line in ax.get_lines():
                    chart["series"].append({
                        "label": str(line.get_label()),
                        "x": [float(v) for v in line.get_xdata()],
                        "y": [float(v) for v in line.get_ydata()],
                    })
            out["charts"].append(chart)
        except Exception:
            # A figure that cannot be serialized is skipped, never fatal.
            continue

def main():
    payload = json.load(sys.stdin)

    cpu = int(payload.get("cpu_seconds") or 0)
    mem = int(payload.get("memory_bytes") or 0)
    if cpu > 0:
        resource.setrlimit(resource.RLIMIT_CPU, (cpu, cpu))
    if mem > 0:
        try:
            resource.setrlimit(resource.RLIMIT_AS, (mem, mem))
        except ValueError:
            pass

    import math, re, collections, datetime
    import numpy as np
    import pandas as pd

    datasets = {}
    for name, spec in (payload.get("datasets") or {}).items():
        datasets[name] = pd.DataFrame(spec.get("rows") or [], columns=spec.get("columns") or [])

    ns = {
        "datasets": datasets,
        "np": np, "numpy": np,
        "pd": pd, "pandas": pd,
        "math": math, "json": json, "re": re,
        "collections": collections, "datetime": datetime,
    }
    dataset_name = payload.get("dataset_name")
    if dataset_name and dataset_name in datasets:
        ns["df"] = datasets[dataset_name]

    out = {"success": False, "stdout": "", "stderr": "", "result": None,
           "datasets": {}, "charts": [], "error": None}

    stdout_cap, stderr_cap = io.StringIO(), io.StringIO()
    real_stdout = sys.stdout
    sys.stdout, sys.stderr = stdout_cap, stderr_cap
    try:
        exec(compile(payload["code"], "<session>", "exec"), ns)
        out["success"] = True
    except BaseException:
        out["error"] = traceback.format_exc()
    finally:
        sys.stdout, sys.stderr = real_stdout, sys.__stderr__

    out["stdout"] = stdout_cap.getvalue()
    out["stderr"] = stderr_cap.getvalue()

    if out["success"]:
        result = ns.get("result")
        if result is not None:
            try:
                json.dumps(result)
                out["result"] = result
            except (TypeError, ValueError):
                out["result"] = repr(result)
        if payload.get("persist") and dataset_name and isinstance(ns.get("df"), pd.DataFrame):
            out["datasets"][dataset_name] = _frame_dict(ns["df"])
        output_df = ns.get("output_df")
        if isinstance(output_df, pd.DataFrame):
            target = payload.get("output_name") or (dataset_name + "_derived" if dataset_name else "output")
            out["datasets"][target] = _frame_dict(output_df)
        _capture_charts(out)

    json.dump(out, sys.__stdout__)

main()
`
