package sqlinline

const QGenerationSummary = `--sql 0acd3702-5b26-4906-ad54-623cd70c93e7
select
  count(*) as total,
  count(*) filter (where status = 'SUCCEEDED') as succeeded,
  count(*) filter (where status = 'FAILED') as failed,
  count(*) filter (where status = 'TIMED_OUT') as timed_out,
  count(*) filter (where status = 'TRANSPORT_EXHAUSTED') as transport_exhausted,
  count(*) filter (where status = 'RUNNING') as running,
  coalesce(avg(extract(epoch from (finished_at - started_at))) filter (where status = 'SUCCEEDED'), 0)::float8 as avg_success_seconds,
  coalesce(sum(artifact_bytes), 0)::bigint as artifact_bytes_total
from generations
where started_at >= now() - ($1::int * interval '1 hour');
`

const QGenerationsByCountry = `--sql 538bd68b-f874-4923-bf51-ca288bbfa275
select coalesce(country, 'unknown') as country, count(*) as total
from generations
where started_at >= now() - ($1::int * interval '1 hour')
group by 1
order by total desc, country asc
limit $2::int;
`
