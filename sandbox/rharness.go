package sandbox

// rHarness is the driver script for the native Rscript backend. Same
// contract as the Python harness: JSON payload on stdin, one JSON
// outcome on stdout, user output captured via sink(). CPU time is
// bounded with setTimeLimit; the address-space ceiling is applied by
// the Go side through the shell's ulimit before Rscript starts.
const rHarness = `
if (!requireNamespace("jsonlite", quietly = TRUE)) {
  cat('{"success":false,"error":"the jsonlite package is required by the R sandbox harness"}')
  quit(save = "no", status = 0)
}

payload <- jsonlite::fromJSON(file("stdin"), simplifyVector = FALSE)

cpu <- payload$cpu_seconds
if (!is.null(cpu) && cpu > 0) {
  setTimeLimit(cpu = cpu, elapsed = cpu * 3, transient = TRUE)
}

frame_from_spec <- function(spec) {
  cols <- unlist(spec$columns)
  rows <- spec$rows
  if (length(rows) == 0 || length(cols) == 0) {
    df <- data.frame(matrix(nrow = 0, ncol = length(cols)))
    names(df) <- cols
    return(df)
  }
  columns <- lapply(seq_along(cols), function(j) {
    sapply(rows, function(r) {
      v <- r[[j]]
      if (is.null(v)) NA else v
    })
  })
  names(columns) <- cols
  as.data.frame(columns, stringsAsFactors = FALSE, check.names = FALSE)
}

frame_to_spec <- function(df) {
  list(
    columns = as.list(names(df)),
    rows = lapply(seq_len(nrow(df)), function(i) {
      lapply(as.list(df[i, , drop = FALSE]), function(v) {
        if (length(v) == 1 && is.na(v)) NULL else v
      })
    })
  )
}

datasets <- list()
for (name in names(payload$datasets)) {
  datasets[[name]] <- frame_from_spec(payload$datasets[[name]])
}

env <- new.env(parent = globalenv())
assign("datasets", datasets, envir = env)
dataset_name <- payload$dataset_name
if (!is.null(dataset_name) && dataset_name %in% names(datasets)) {
  assign("df", datasets[[dataset_name]], envir = env)
}

out <- list(success = FALSE, stdout = "", stderr = "", result = NULL,
            datasets = list(), charts = list(), error = NULL)

capture_file <- tempfile()
con <- file(capture_file, open = "wt")
sink(con)
sink(con, type = "message")
status <- tryCatch({
  value <- eval(parse(text = payload$code), envir = env)
  list(ok = TRUE, value = value)
}, error = function(e) {
  list(ok = FALSE, msg = conditionMessage(e))
})
sink(type = "message")
sink()
close(con)

out$stdout <- paste(readLines(capture_file, warn = FALSE), collapse = "\n")

if (status$ok) {
  out$success <- TRUE
  result <- if (exists("result", envir = env, inherits = FALSE)) get("result", envir = env) else status$value
  if (!is.null(result) && !is.function(result) && !is.environment(result)) {
    out$result <- tryCatch(
      jsonlite::fromJSON(jsonlite::toJSON(result, auto_unbox = TRUE, force = TRUE, na = "null"), simplifyVector = FALSE),
      error = function(e) paste(utils::capture.output(print(result)), collapse = "\n")
    )
  }
  if (isTRUE(payload$persist) && !is.null(dataset_name) && exists("df", envir = env, inherits = FALSE)) {
    current <- get("df", envir = env)
    if (is.data.frame(current)) {
      out$datasets[[dataset_name]] <- frame_to_spec(current)
    }
  }
  if (exists("output_df", envir = env, inherits = FALSE)) {
    derived <- get("output_df", envir = env)
    if (is.data.frame(derived)) {
      target <- if (!is.null(dataset_name)) paste0(dataset_name, "_derived") else "output"
      out$datasets[[target]] <- frame_to_spec(derived)
    }
  }
} else {
  out$error <- status$msg
}

cat(jsonlite::toJSON(out, auto_unbox = TRUE, null = "null", na = "null"))
`
