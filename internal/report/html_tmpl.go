// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
:root {
  --bg: #fff; --fg: #1a1a2e; --card-bg: #f8f9fa; --border: #dee2e6;
  --table-alt: #f1f3f5; --muted: #6c757d; --accent: #0d6efd;
  --pass: #28a745; --warn: #ffc107; --fail: #dc3545; --na: #6c757d;
  --banner-bg: #fff3cd; --banner-border: #ffc107;
}
@media (prefers-color-scheme: dark) {
  :root {
    --bg: #1a1a2e; --fg: #e9ecef; --card-bg: #16213e; --border: #495057;
    --table-alt: #0f3460; --muted: #adb5bd; --accent: #5b9aff;
    --pass: #4caf50; --warn: #ffc107; --fail: #f55; --na: #adb5bd;
    --banner-bg: #3a3000; --banner-border: #ffc107;
  }
}
* { box-sizing: border-box; margin: 0; padding: 0; }
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: var(--bg); color: var(--fg); line-height: 1.5; padding: 1rem; max-width: 1100px; margin: 0 auto; }
header { margin-bottom: 1.5rem; }
header h1 { font-size: 1.5rem; margin-bottom: .25rem; }
header p { color: var(--muted); font-size: .875rem; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; font-size: .8125rem; }
.banner { background: var(--banner-bg); border: 1px solid var(--banner-border); border-radius: 8px; padding: .75rem 1rem; margin-bottom: 1rem; font-size: .875rem; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(120px, 1fr)); gap: .75rem; margin-bottom: 1.5rem; }
.card { background: var(--card-bg); border: 1px solid var(--border); border-radius: 8px; padding: .75rem; text-align: center; }
.card .value { font-size: 1.5rem; font-weight: 700; }
.card .label { font-size: .75rem; color: var(--muted); text-transform: uppercase; }
.value.pass { color: var(--pass); }
.value.warn { color: var(--warn); }
.value.fail { color: var(--fail); }
.value.na { color: var(--na); }
.langs { margin-bottom: 1.5rem; font-size: .875rem; color: var(--muted); }
.langs span { background: var(--card-bg); border: 1px solid var(--border); border-radius: 999px; padding: .125rem .625rem; margin-right: .375rem; }
section.gate { background: var(--card-bg); border: 1px solid var(--border); border-radius: 8px; padding: 1rem; margin-bottom: 1rem; }
section.gate h2 { font-size: 1.125rem; display: flex; align-items: center; gap: .5rem; flex-wrap: wrap; }
.badge { font-size: .6875rem; font-weight: 700; padding: .125rem .5rem; border-radius: 3px; color: #fff; text-transform: uppercase; }
.badge.pass { background: var(--pass); }
.badge.warn { background: var(--warn); color: #1a1a2e; }
.badge.fail { background: var(--fail); }
.badge.na { background: var(--na); }
.meta { color: var(--muted); font-size: .8125rem; margin: .25rem 0 .75rem; }
table { width: 100%; border-collapse: collapse; font-size: .8125rem; }
th, td { padding: .375rem .625rem; text-align: left; border-bottom: 1px solid var(--border); vertical-align: top; }
tr:nth-child(even) { background: var(--table-alt); }
td.line { text-align: right; color: var(--muted); white-space: nowrap; }
.capped { color: var(--muted); font-size: .75rem; margin-top: .375rem; }
.recommendation { margin-top: .75rem; padding: .625rem .75rem; border-left: 3px solid var(--accent); font-size: .875rem; }
.sources { margin-top: .5rem; color: var(--muted); font-size: .75rem; }
details { margin-top: .5rem; }
summary { cursor: pointer; font-size: .875rem; color: var(--accent); }
.errors li { font-size: .8125rem; color: var(--fail); margin-left: 1.25rem; }
footer { margin-top: 2rem; color: var(--muted); font-size: .75rem; text-align: center; }
</style>
</head>
<body>
<header>
  <h1>{{.Title}}</h1>
  <p>
    {{if .RepoURL}}<code>{{.RepoURL}}</code>{{if .Branch}} @ {{.Branch}}{{end}}{{end}}
    {{if .CommitHash}} &middot; commit <code>{{.CommitHash}}</code>{{end}}
    &middot; scan <code>{{.ScanID}}</code>
    &middot; generated {{.GeneratedAt}}
  </p>
</header>

{{if .Incomplete}}
<div class="banner">
  <strong>Partial results.</strong> The scan stopped before every file was
  checked (deadline or cancellation); scores cover only what was scanned.
</div>
{{end}}

<div class="cards">
  <div class="card"><div class="value {{.ScoreClass}}">{{.OverallScore}}</div><div class="label">Overall score</div></div>
  <div class="card"><div class="value pass">{{.Passed}}</div><div class="label">Passed</div></div>
  <div class="card"><div class="value fail">{{.Failed}}</div><div class="label">Failed</div></div>
  <div class="card"><div class="value warn">{{.Warnings}}</div><div class="label">Warnings</div></div>
  <div class="card"><div class="value na">{{.Skipped}}</div><div class="label">Not applicable</div></div>
  <div class="card"><div class="value">{{.FileCount}}</div><div class="label">Files</div></div>
  <div class="card"><div class="value">{{.TotalLines}}</div><div class="label">Lines</div></div>
</div>

{{if .Languages}}
<div class="langs">
  {{range .Languages}}<span>{{.Name}} ({{.Files}})</span>{{end}}
</div>
{{end}}

{{if .Errors}}
<details class="errors">
  <summary>{{len .Errors}} scan warning(s)</summary>
  <ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>
</details>
{{end}}

{{range .Gates}}
<section class="gate" id="{{.Anchor}}">
  <h2>{{.DisplayName}} <span class="badge {{.StatusClass}}">{{.Status}}</span> <span class="value {{.StatusClass}}">{{.Score}}</span>{{if .Partial}} <span class="badge na">PARTIAL</span>{{end}}</h2>
  <p class="meta">
    {{if .Category}}{{.Category}} &middot; {{end}}{{if .Priority}}{{.Priority}} priority &middot; {{end}}weight {{.Weight}}{{if .Coverage}} &middot; coverage {{.Coverage}}{{end}}{{if .Confidence}} &middot; confidence {{.Confidence}}{{end}}
  </p>
  {{if .Matches}}
  <details{{if eq .StatusClass "fail"}} open{{end}}>
    <summary>{{.MatchCount}} match(es)</summary>
    <table>
      <thead><tr><th>File</th><th>Line</th><th>Evidence</th><th>Source</th></tr></thead>
      <tbody>
        {{range .Matches}}<tr><td><code>{{.File}}</code></td><td class="line">{{.Line}}</td><td><code>{{.Evidence}}</code></td><td>{{.Source}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{if .MatchesCapped}}<p class="capped">Match list capped; the file scan found more.</p>{{end}}
  </details>
  {{end}}
  {{if .Recommendation}}<div class="recommendation">{{.Recommendation}}</div>{{end}}
  {{if .Sources}}
  <p class="sources">
    Sources: {{range $i, $s := .Sources}}{{if $i}}, {{end}}{{$s.Collector}} ({{$s.Outcome}}{{if $s.Confidence}}, {{$s.Confidence}}{{end}}){{end}}
  </p>
  {{end}}
</section>
{{end}}

{{if .NotApplicable}}
<section class="gate">
  <h2>Not applicable <span class="badge na">{{len .NotApplicable}}</span></h2>
  <table>
    <thead><tr><th>Gate</th><th>Reason</th></tr></thead>
    <tbody>
      {{range .NotApplicable}}<tr><td>{{.DisplayName}}</td><td>{{.Reason}}</td></tr>
      {{end}}
    </tbody>
  </table>
</section>
{{end}}

<footer>gatewarden hard-gate audit</footer>
</body>
</html>
`
